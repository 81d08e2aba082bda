package summary_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
	"github.com/opiskelu/palaute/core/summary"
	inmemdb "github.com/opiskelu/palaute/storage/database/inmem"
	testutil "github.com/opiskelu/palaute/tests"
)

var now = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, db *inmemdb.DB, conf *core.Config) *summary.Service {
	t.Helper()
	svc := summary.NewService(
		inmemdb.NewSummaryRepository(db),
		inmemdb.NewCourseRepository(db),
		testutil.Logger{},
		conf,
	)
	summary.SetNowFunc(svc, func() time.Time { return now })
	return svc
}

// seedCourse stores one course unit with one realisation target under the
// organisation, plus the given student links on the target.
func seedCourse(t *testing.T, db *inmemdb.DB, orgID, cuID, code, crID string, start time.Time, students, feedbacks int) feedback.Target {
	t.Helper()
	ctx := context.Background()
	courses := inmemdb.NewCourseRepository(db)
	fbRepo := inmemdb.NewFeedbackRepository(db)

	require.NoError(t, courses.UpsertCourseUnits(ctx, []course.CourseUnit{
		{ID: cuID, Name: core.LocalizedString{Fi: code}, CourseCode: code},
	}))
	require.NoError(t, courses.CreateCourseUnitOrganisations(ctx, []course.CourseUnitOrganisation{
		{CourseUnitID: cuID, OrganisationID: orgID, Type: course.OrgTypePrimary},
	}))
	require.NoError(t, courses.CreateCourseRealisation(ctx, course.CourseRealisation{
		ID:        crID,
		StartDate: null.TimeFrom(start),
		EndDate:   null.TimeFrom(start.AddDate(0, 2, 0)),
	}))

	rows, err := fbRepo.UpsertTargets(ctx, []feedback.Target{{
		FeedbackType:        feedback.TypeCourseRealisation,
		TypeID:              crID,
		CourseUnitID:        cuID,
		CourseRealisationID: crID,
	}}, true)
	require.NoError(t, err)
	target := rows[0]

	for i := 0; i < students; i++ {
		ut := feedback.UserTarget{
			UserID:           crID + "-student-" + string(rune('a'+i)),
			FeedbackTargetID: target.ID,
			AccessStatus:     feedback.AccessStudent,
		}
		if i < feedbacks {
			ut.FeedbackID = null.StringFrom(ut.UserID + "-fb")
		}
		db.SetUserTargetFeedback(ut)
	}
	return target
}

func orgAccess(org course.Organisation, flags summary.AccessFlags) summary.OrganisationAccess {
	return summary.OrganisationAccess{Organisation: org, Access: flags}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, float64(0), summary.Percentage(0, 0))
	assert.Equal(t, float64(0), summary.Percentage(5, 0))
	assert.Equal(t, float64(50), summary.Percentage(1, 2))
	assert.Equal(t, float64(100), summary.Percentage(3, 3))
}

func TestDefaultDateRange(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
	}{
		{
			name:      "autumn term",
			now:       time.Date(2024, time.October, 10, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "spring term belongs to the previous academic year",
			now:       time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "august 1st starts the new academic year",
			now:       time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := summary.DefaultDateRange(tt.now)
			assert.True(t, tt.wantStart.Equal(r.StartDate))
			assert.True(t, tt.wantStart.AddDate(1, 0, 0).Equal(r.EndDate))
		})
	}
}

func TestService_OrganisationSummaries(t *testing.T) {
	org := course.Organisation{ID: "org1", Name: core.LocalizedString{Fi: "Matlu"}, Code: "H50"}
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	db := inmemdb.Open()
	db.AddOrganisation(org)
	seedCourse(t, db, "org1", "cu1", "TKT21018", "real1", start, 4, 2)
	seedCourse(t, db, "org1", "cu2", "AYTKT21018", "real2", start, 3, 1)
	db.AddSurvey(feedback.Survey{ID: "s1", Type: feedback.SurveyUniversity, QuestionIDs: []int{1, 2}})
	db.AddSurvey(feedback.Survey{ID: "s2", Type: feedback.SurveyProgramme, TypeID: null.StringFrom("H50"), QuestionIDs: []int{2, 3}})
	db.AddQuestion(feedback.Question{ID: 1, Type: "LIKERT"})
	db.AddQuestion(feedback.Question{ID: 2, Type: "LIKERT"})
	db.AddQuestion(feedback.Question{ID: 3, Type: "OPEN"})

	svc := newService(t, db, testutil.NewConfig())
	access := []summary.OrganisationAccess{orgAccess(org, summary.AccessFlags{Read: true})}

	t.Run("no access is forbidden", func(t *testing.T) {
		_, err := svc.OrganisationSummaries(context.Background(), summary.OrganisationSummariesRequest{UserID: "nobody"})
		var appErr *core.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 403, appErr.Code)
	})

	t.Run("organisation access", func(t *testing.T) {
		res, err := svc.OrganisationSummaries(context.Background(), summary.OrganisationSummariesRequest{
			UserID:             "user1",
			OrganisationAccess: access,
		})
		require.NoError(t, err)

		// programme questions merge after university questions, deduplicated
		ids := make([]int, 0, len(res.Questions))
		for _, q := range res.Questions {
			ids = append(ids, q.ID)
		}
		assert.Equal(t, []int{1, 2, 3}, ids)

		// open university course units are excluded by default
		require.Len(t, res.Organisations, 1)
		o := res.Organisations[0]
		assert.Equal(t, "H50", o.Code)
		require.Len(t, o.CourseUnits, 1)
		cu := o.CourseUnits[0]
		assert.Equal(t, "TKT21018", cu.CourseCode)
		assert.Equal(t, 2, cu.FeedbackCount)
		assert.Equal(t, 4, cu.StudentCount)
		assert.Equal(t, float64(50), cu.FeedbackPercentage)
	})

	t.Run("open university included on request", func(t *testing.T) {
		res, err := svc.OrganisationSummaries(context.Background(), summary.OrganisationSummariesRequest{
			UserID:                    "user1",
			OrganisationAccess:        access,
			IncludeOpenUniCourseUnits: true,
		})
		require.NoError(t, err)
		require.Len(t, res.Organisations, 1)
		assert.Len(t, res.Organisations[0].CourseUnits, 2)
		// course units sort by course code
		assert.Equal(t, "AYTKT21018", res.Organisations[0].CourseUnits[0].CourseCode)
		assert.Equal(t, 7, res.Organisations[0].StudentCount)
		assert.Equal(t, 3, res.Organisations[0].FeedbackCount)
	})

	t.Run("date range excludes realisations outside it", func(t *testing.T) {
		res, err := svc.OrganisationSummaries(context.Background(), summary.OrganisationSummariesRequest{
			UserID:             "user1",
			OrganisationAccess: access,
			StartDate:          time.Date(2022, time.August, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		// end date defaults to start + 1 year: 2022/23 has no realisations
		assert.Empty(t, res.Organisations)
	})

	t.Run("inverted date range is rejected", func(t *testing.T) {
		_, err := svc.OrganisationSummaries(context.Background(), summary.OrganisationSummariesRequest{
			UserID:             "user1",
			OrganisationAccess: access,
			StartDate:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			EndDate:            time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		})
		vErr, ok := errors.Cause(err).(*core.ValidationError)
		require.True(t, ok, "expected a validation error, got %v", err)
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "endDate", vErr.Fields[0].Field)
	})

	t.Run("teacher access without organisation access", func(t *testing.T) {
		target := seedCourse(t, db, "org1", "cu3", "TKT20009", "real3", start, 2, 1)
		db.SetUserTargetFeedback(feedback.UserTarget{
			UserID:           "teacher1",
			FeedbackTargetID: target.ID,
			AccessStatus:     feedback.AccessResponsibleTeacher,
		})

		res, err := svc.OrganisationSummaries(context.Background(), summary.OrganisationSummariesRequest{UserID: "teacher1"})
		require.NoError(t, err)

		// only the teacher's own realisations are visible
		require.Len(t, res.Organisations, 1)
		require.Len(t, res.Organisations[0].CourseUnits, 1)
		assert.Equal(t, "TKT20009", res.Organisations[0].CourseUnits[0].CourseCode)
	})

	t.Run("included organisations override", func(t *testing.T) {
		conf := testutil.NewConfig()
		conf.IncludedOrganisationsByUserID = map[string][]string{"user1": {"H99"}}
		restricted := newService(t, db, conf)

		res, err := restricted.OrganisationSummaries(context.Background(), summary.OrganisationSummariesRequest{
			UserID:             "user1",
			OrganisationAccess: access,
		})
		require.NoError(t, err)
		assert.Empty(t, res.Organisations)
	})
}

func TestService_AccessInfo(t *testing.T) {
	org := course.Organisation{ID: "org1", Code: "H50"}

	db := inmemdb.Open()
	svc := newService(t, db, testutil.NewConfig())

	info, err := svc.AccessInfo(context.Background(), "nobody", nil)
	require.NoError(t, err)
	assert.False(t, info.Accessible)
	assert.Nil(t, info.DefaultDateRange)

	info, err = svc.AccessInfo(context.Background(), "user1", []summary.OrganisationAccess{
		orgAccess(org, summary.AccessFlags{Read: true, Admin: true}),
	})
	require.NoError(t, err)
	assert.True(t, info.Accessible)
	assert.True(t, info.AdminAccess)
	require.NotNil(t, info.DefaultDateRange)
	assert.True(t, time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC).Equal(info.DefaultDateRange.StartDate))
}

func TestService_CourseUnitSummaries(t *testing.T) {
	org := course.Organisation{ID: "org1", Code: "H50"}
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	db := inmemdb.Open()
	db.AddOrganisation(org)
	target := seedCourse(t, db, "org1", "cu1", "TKT21018", "real1", start, 4, 2)
	db.AddSurvey(feedback.Survey{ID: "s1", Type: feedback.SurveyUniversity, QuestionIDs: []int{1}})
	db.AddQuestion(feedback.Question{ID: 1, Type: "LIKERT"})

	svc := newService(t, db, testutil.NewConfig())

	t.Run("unknown course code", func(t *testing.T) {
		_, err := svc.CourseUnitSummaries(context.Background(), summary.CourseUnitSummariesRequest{
			UserID:     "user1",
			IsAdmin:    true,
			CourseCode: "NOPE",
		})
		var appErr *core.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 404, appErr.Code)
	})

	t.Run("no access", func(t *testing.T) {
		_, err := svc.CourseUnitSummaries(context.Background(), summary.CourseUnitSummariesRequest{
			UserID:     "nobody",
			CourseCode: "TKT21018",
		})
		var appErr *core.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 403, appErr.Code)
	})

	t.Run("organisation read access", func(t *testing.T) {
		res, err := svc.CourseUnitSummaries(context.Background(), summary.CourseUnitSummariesRequest{
			UserID:             "user1",
			OrganisationAccess: []summary.OrganisationAccess{orgAccess(org, summary.AccessFlags{Read: true})},
			CourseCode:         "TKT21018",
		})
		require.NoError(t, err)
		assert.Equal(t, "cu1", res.CourseUnit.ID)
		require.Len(t, res.CourseRealisations, 1)
		r := res.CourseRealisations[0]
		assert.Equal(t, "real1", r.CourseRealisation.ID)
		assert.Equal(t, target.ID, r.FeedbackTargetID)
		assert.Equal(t, float64(50), r.FeedbackPercentage)
	})

	t.Run("teacher access", func(t *testing.T) {
		db.SetUserTargetFeedback(feedback.UserTarget{
			UserID:           "teacher1",
			FeedbackTargetID: target.ID,
			AccessStatus:     feedback.AccessTeacher,
		})
		res, err := svc.CourseUnitSummaries(context.Background(), summary.CourseUnitSummariesRequest{
			UserID:     "teacher1",
			CourseCode: "TKT21018",
		})
		require.NoError(t, err)
		assert.Len(t, res.CourseRealisations, 1)
	})
}
