package notifsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
	"github.com/opiskelu/palaute/core/user"
	emailsvc "github.com/opiskelu/palaute/services/email"
	inmemdb "github.com/opiskelu/palaute/storage/database/inmem"
	testutil "github.com/opiskelu/palaute/tests"
)

var now = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, db *inmemdb.DB) *Service {
	t.Helper()
	conf := testutil.NewConfig()
	core.ParseEmailTemplates(conf, testutil.Logger{})
	emailsvc.SentMessages = nil

	svc := NewService(inmemdb.NewFeedbackRepository(db), emailsvc.NewConsoleServiceMock(conf), testutil.Logger{}, conf)
	svc.nowFunc = func() time.Time { return now }
	return svc
}

// seedTarget stores a visible course realisation target with its course unit,
// organisation link and realisation.
func seedTarget(t *testing.T, db *inmemdb.DB, id, cuID, code string, target feedback.Target) {
	t.Helper()
	ctx := context.Background()
	courses := inmemdb.NewCourseRepository(db)

	require.NoError(t, courses.UpsertCourseUnits(ctx, []course.CourseUnit{
		{ID: cuID, Name: core.LocalizedString{Fi: code, En: code}, CourseCode: code},
	}))
	require.NoError(t, courses.CreateCourseUnitOrganisations(ctx, []course.CourseUnitOrganisation{
		{CourseUnitID: cuID, OrganisationID: "org1", Type: course.OrgTypePrimary},
	}))
	require.NoError(t, courses.CreateCourseRealisation(ctx, course.CourseRealisation{
		ID:        id,
		StartDate: null.TimeFrom(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)),
	}))

	target.ID = "target-" + id
	target.FeedbackType = feedback.TypeCourseRealisation
	target.TypeID = id
	target.CourseUnitID = cuID
	target.CourseRealisationID = id
	db.SetTarget(target)
}

func addStudent(db *inmemdb.DB, userID, email, targetID string) {
	db.AddUser(user.User{ID: userID, Username: userID, Email: email, Language: "fi"})
	db.SetUserTargetFeedback(feedback.UserTarget{
		UserID:           userID,
		FeedbackTargetID: targetID,
		AccessStatus:     feedback.AccessStudent,
	})
}

func addTeacher(db *inmemdb.DB, userID, email, targetID string) {
	db.AddUser(user.User{ID: userID, Username: userID, Email: email, Language: "en"})
	db.SetUserTargetFeedback(feedback.UserTarget{
		UserID:           userID,
		FeedbackTargetID: targetID,
		AccessStatus:     feedback.AccessTeacher,
	})
}

func sentNotifications(t *testing.T) map[string]*Notification {
	t.Helper()
	byEmail := make(map[string]*Notification, len(emailsvc.SentMessages))
	for _, msg := range emailsvc.SentMessages {
		n, ok := msg.TemplateData.(*Notification)
		require.True(t, ok, "unexpected template data %T", msg.TemplateData)
		byEmail[n.Email] = n
	}
	return byEmail
}

func TestService_SendFeedbackOpenNotifications(t *testing.T) {
	db := inmemdb.Open()
	db.AddOrganisation(course.Organisation{ID: "org1", Code: "H50"})

	open := feedback.Target{OpensAt: now.AddDate(0, 0, -1), ClosesAt: now.AddDate(0, 0, 13)}
	seedTarget(t, db, "real1", "cu1", "TKT21018", open)
	seedTarget(t, db, "real2", "cu2", "TKT20009", open)
	// closed long ago, never selected
	seedTarget(t, db, "real3", "cu3", "TKT10001", feedback.Target{
		OpensAt:  now.AddDate(0, 0, -30),
		ClosesAt: now.AddDate(0, 0, -16),
	})

	addStudent(db, "alice", "alice@test.fi", "target-real1")
	addStudent(db, "alice", "alice@test.fi", "target-real2")
	addStudent(db, "bob", "bob@test.fi", "target-real1")
	addStudent(db, "noaddress", "", "target-real1")
	addStudent(db, "late", "late@test.fi", "target-real3")

	svc := newTestService(t, db)
	require.NoError(t, svc.SendFeedbackOpenNotifications(context.Background()))

	sent := sentNotifications(t)
	require.Len(t, sent, 2)

	// one email per student, listing all of their opened courses
	alice := sent["alice@test.fi"]
	require.NotNil(t, alice)
	require.Len(t, alice.Courses, 2)
	assert.Equal(t, "TKT20009", alice.Courses[0].Name) // sorted by name
	assert.Equal(t, "TKT21018", alice.Courses[1].Name)
	assert.Contains(t, alice.Courses[0].URL, "/targets/target-real2/feedback")

	bob := sent["bob@test.fi"]
	require.NotNil(t, bob)
	assert.Len(t, bob.Courses, 1)

	assert.NotContains(t, sent, "late@test.fi")

	// localized subject
	assert.Equal(t, "Kurssipalaute on avautunut", emailsvc.SentMessages[0].Subject)

	// the second run finds everything already sent
	emailsvc.SentMessages = nil
	require.NoError(t, svc.SendFeedbackOpenNotifications(context.Background()))
	assert.Empty(t, emailsvc.SentMessages)
}

func TestService_SendFeedbackOpenNotifications_disabledCourse(t *testing.T) {
	db := inmemdb.Open()
	db.AddOrganisation(course.Organisation{ID: "org1", Code: "H50", DisabledCourseCodes: []string{"TKT21018"}})

	seedTarget(t, db, "real1", "cu1", "TKT21018", feedback.Target{
		OpensAt:  now.AddDate(0, 0, -1),
		ClosesAt: now.AddDate(0, 0, 13),
	})
	addStudent(db, "alice", "alice@test.fi", "target-real1")

	svc := newTestService(t, db)
	require.NoError(t, svc.SendFeedbackOpenNotifications(context.Background()))
	assert.Empty(t, emailsvc.SentMessages)
}

func TestService_SendFeedbackOpeningReminders(t *testing.T) {
	db := inmemdb.Open()
	db.AddOrganisation(course.Organisation{ID: "org1", Code: "H50"})

	seedTarget(t, db, "real1", "cu1", "TKT21018", feedback.Target{
		OpensAt:  now.AddDate(0, 0, 6).Add(12 * time.Hour),
		ClosesAt: now.AddDate(0, 0, 21),
	})
	addTeacher(db, "teacher1", "teacher1@test.fi", "target-real1")

	svc := newTestService(t, db)
	require.NoError(t, svc.SendFeedbackOpeningReminders(context.Background()))

	sent := sentNotifications(t)
	require.Len(t, sent, 1)
	n := sent["teacher1@test.fi"]
	require.NotNil(t, n)
	require.Len(t, n.Courses, 1)
	assert.NotEmpty(t, n.Courses[0].OpensAt)
	assert.Equal(t, "Course feedback is about to open", emailsvc.SentMessages[0].Subject)

	target, ok := db.Target(feedback.TypeCourseRealisation, "real1")
	require.True(t, ok)
	assert.True(t, target.FeedbackOpeningReminderEmailSent)

	// idempotent: marked targets are not selected again
	emailsvc.SentMessages = nil
	require.NoError(t, svc.SendFeedbackOpeningReminders(context.Background()))
	assert.Empty(t, emailsvc.SentMessages)
}

func TestService_SendFeedbackResponseReminders(t *testing.T) {
	db := inmemdb.Open()
	db.AddOrganisation(course.Organisation{ID: "org1", Code: "H50"})

	// closed yesterday without counter feedback
	seedTarget(t, db, "real1", "cu1", "TKT21018", feedback.Target{
		OpensAt:  now.AddDate(0, 0, -15),
		ClosesAt: now.AddDate(0, 0, -1),
	})
	addTeacher(db, "teacher1", "teacher1@test.fi", "target-real1")

	// closed yesterday with counter feedback already given
	seedTarget(t, db, "real2", "cu2", "TKT20009", feedback.Target{
		OpensAt:          now.AddDate(0, 0, -15),
		ClosesAt:         now.AddDate(0, 0, -1),
		FeedbackResponse: null.StringFrom("thanks everyone"),
	})
	addTeacher(db, "teacher2", "teacher2@test.fi", "target-real2")

	svc := newTestService(t, db)
	require.NoError(t, svc.SendFeedbackResponseReminders(context.Background()))

	sent := sentNotifications(t)
	require.Len(t, sent, 1)
	require.NotNil(t, sent["teacher1@test.fi"])
	assert.NotContains(t, sent, "teacher2@test.fi")

	target, ok := db.Target(feedback.TypeCourseRealisation, "real1")
	require.True(t, ok)
	assert.True(t, target.FeedbackResponseReminderEmailSent)
}

func TestService_RunDaily(t *testing.T) {
	db := inmemdb.Open()
	db.AddOrganisation(course.Organisation{ID: "org1", Code: "H50"})

	seedTarget(t, db, "real1", "cu1", "TKT21018", feedback.Target{
		OpensAt:  now.AddDate(0, 0, -1),
		ClosesAt: now.AddDate(0, 0, 13),
	})
	addStudent(db, "alice", "alice@test.fi", "target-real1")
	addTeacher(db, "teacher1", "teacher1@test.fi", "target-real1")

	seedTarget(t, db, "real2", "cu2", "TKT20009", feedback.Target{
		OpensAt:  now.AddDate(0, 0, -15),
		ClosesAt: now.AddDate(0, 0, -1),
	})
	addTeacher(db, "teacher1", "teacher1@test.fi", "target-real2")

	svc := newTestService(t, db)
	require.NoError(t, svc.RunDaily(context.Background()))

	// one open notification and one response reminder
	require.Len(t, emailsvc.SentMessages, 2)
	subjects := []string{emailsvc.SentMessages[0].Subject, emailsvc.SentMessages[1].Subject}
	assert.Contains(t, subjects, "Kurssipalaute on avautunut")
	assert.Contains(t, subjects, "Please give counter feedback")
}
