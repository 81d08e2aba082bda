package tests

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	. "github.com/opiskelu/palaute/apps/api/echo"
	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
	"github.com/opiskelu/palaute/core/summary"
	inmemdb "github.com/opiskelu/palaute/storage/database/inmem"
	testutil "github.com/opiskelu/palaute/tests"
)

var (
	conf *core.Config
	db   *inmemdb.DB
	app  Server

	org      = course.Organisation{ID: "org1", Name: core.LocalizedString{Fi: "Matlu"}, Code: "H50"}
	target   feedback.Target
	courseID = "real1"

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func TestMain(m *testing.M) {
	conf = testutil.NewConfig()
	conf.Debug = false // exercise the production error payloads

	db = inmemdb.Open()
	seed()

	summarySvc := summary.NewService(
		inmemdb.NewSummaryRepository(db),
		inmemdb.NewCourseRepository(db),
		testutil.Logger{},
		conf,
	)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	app = NewServer(
		ServerDeps{
			Conf:           conf,
			Logger:         testutil.Logger{},
			SummarySvc:     summarySvc,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
	)

	os.Exit(m.Run())
}

// seed stores one course with four students (two of whom gave feedback) and
// one responsible teacher. The realisation starts today so it always falls in
// the default date range.
func seed() {
	ctx := context.Background()
	courses := inmemdb.NewCourseRepository(db)
	feedbacks := inmemdb.NewFeedbackRepository(db)

	db.AddOrganisation(org)
	mustNoErr(courses.UpsertCourseUnits(ctx, []course.CourseUnit{
		{ID: "cu1", Name: core.LocalizedString{Fi: "Tietorakenteet"}, CourseCode: "TKT21018"},
	}))
	mustNoErr(courses.CreateCourseUnitOrganisations(ctx, []course.CourseUnitOrganisation{
		{CourseUnitID: "cu1", OrganisationID: org.ID, Type: course.OrgTypePrimary},
	}))
	mustNoErr(courses.CreateCourseRealisation(ctx, course.CourseRealisation{
		ID:        courseID,
		StartDate: null.TimeFrom(time.Now().UTC()),
	}))

	rows, err := feedbacks.UpsertTargets(ctx, []feedback.Target{{
		FeedbackType:        feedback.TypeCourseRealisation,
		TypeID:              courseID,
		CourseUnitID:        "cu1",
		CourseRealisationID: courseID,
	}}, true)
	mustNoErr(err)
	target = rows[0]

	for i, id := range []string{"s1", "s2", "s3", "s4"} {
		ut := feedback.UserTarget{
			UserID:           id,
			FeedbackTargetID: target.ID,
			AccessStatus:     feedback.AccessStudent,
		}
		if i < 2 {
			ut.FeedbackID = null.StringFrom(id + "-fb")
		}
		db.SetUserTargetFeedback(ut)
	}
	db.SetUserTargetFeedback(feedback.UserTarget{
		UserID:           "teacher1",
		FeedbackTargetID: target.ID,
		AccessStatus:     feedback.AccessResponsibleTeacher,
	})

	db.AddSurvey(feedback.Survey{ID: "sv1", Type: feedback.SurveyUniversity, QuestionIDs: []int{1, 2}})
	db.AddSurvey(feedback.Survey{ID: "sv2", Type: feedback.SurveyProgramme, TypeID: null.StringFrom("H50"), QuestionIDs: []int{3}})
	db.AddQuestion(feedback.Question{ID: 1, Type: "LIKERT"})
	db.AddQuestion(feedback.Question{ID: 2, Type: "LIKERT"})
	db.AddQuestion(feedback.Question{ID: 3, Type: "OPEN"})
}

func mustNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
