package feedback

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/opiskelu/palaute/core"
)

// Feedback target types.
const (
	TypeCourseRealisation = "courseRealisation"
	TypeAssessmentItem    = "assessmentItem"
	TypeStudySubGroup     = "studySubGroup"
)

// Access statuses on a user/feedback-target pair.
const (
	AccessStudent            = "STUDENT"
	AccessTeacher            = "TEACHER"
	AccessResponsibleTeacher = "RESPONSIBLE_TEACHER"
	AccessNone               = "NONE"
)

// Survey scopes. A target's effective question set is the union, in order,
// of university -> programme -> teacher level questions.
const (
	SurveyUniversity = "university"
	SurveyProgramme  = "programme"
	SurveyTeacher    = "teacher"
)

var accessPriorities = map[string]int{
	AccessResponsibleTeacher: 3,
	AccessTeacher:            2,
	AccessStudent:            1,
	AccessNone:               0,
}

// AccessPriority orders access statuses so that "most privileged wins" when a
// user holds multiple roles on the same target.
func AccessPriority(status string) int {
	return accessPriorities[status]
}

type (
	// Target is the entity students give feedback against; one per course
	// realisation plus one per study subgroup. Uniqueness holds on
	// (FeedbackType, TypeID).
	Target struct {
		ID                  string               `json:"id"`
		FeedbackType        string               `json:"feedbackType"`
		TypeID              string               `json:"typeId"`
		CourseUnitID        string               `json:"courseUnitId"`
		CourseRealisationID string               `json:"courseRealisationId"`
		Name                core.LocalizedString `json:"name"`
		Hidden              bool                 `json:"hidden"`
		OpensAt             time.Time            `json:"opensAt"`
		ClosesAt            time.Time            `json:"closesAt"`
		// FeedbackDatesEditedByTeacher makes OpensAt/ClosesAt durable across
		// sync runs; derived dates are never applied once set.
		FeedbackDatesEditedByTeacher bool `json:"feedbackDatesEditedByTeacher"`

		FeedbackCount     int         `json:"feedbackCount"`
		FeedbackResponse  null.String `json:"feedbackResponse"`
		FeedbackVisibility string     `json:"feedbackVisibility"`
		PublicQuestionIDs []int       `json:"publicQuestionIds"`

		FeedbackResponseEmailSent         bool `json:"feedbackResponseEmailSent"`
		FeedbackOpenNotificationEmailSent bool `json:"feedbackOpenNotificationEmailSent"`
		FeedbackOpeningReminderEmailSent  bool `json:"feedbackOpeningReminderEmailSent"`
		FeedbackResponseReminderEmailSent bool `json:"feedbackResponseReminderEmailSent"`

		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// UserTarget links a user to a feedback target with an access status and
	// an optional submitted feedback.
	UserTarget struct {
		ID                    string      `json:"id"`
		UserID                string      `json:"userId"`
		FeedbackTargetID      string      `json:"feedbackTargetId"`
		AccessStatus          string      `json:"accessStatus"`
		FeedbackID            null.String `json:"feedbackId"`
		FeedbackOpenEmailSent bool        `json:"feedbackOpenEmailSent"`
	}

	Survey struct {
		ID                string      `json:"id"`
		Type              string      `json:"type"` // university | programme | teacher
		TypeID            null.String `json:"typeId"`
		FeedbackTargetID  null.String `json:"feedbackTargetId"`
		QuestionIDs       []int       `json:"questionIds"`
		PublicQuestionIDs []int       `json:"publicQuestionIds"`
	}

	Question struct {
		ID       int                  `json:"id"`
		Type     string               `json:"type"`
		Required bool                 `json:"required"`
		Label    core.LocalizedString `json:"label"`
	}

	// DateCheck flags a feedback target whose course dates changed upstream
	// while a teacher had edited the feedback window; resolved manually.
	DateCheck struct {
		ID               string    `json:"id"`
		FeedbackTargetID string    `json:"feedbackTargetId"`
		IsSolved         bool      `json:"isSolved"`
		CreatedAt        time.Time `json:"createdAt"`
	}

	// TargetDatesInfo is the projection used by the realisation reconciler's
	// teacher-edit check.
	TargetDatesInfo struct {
		ID                           string
		FeedbackDatesEditedByTeacher bool
	}
)

// IsOpen reports whether the target currently accepts feedback. Targets with
// no window configured are always open.
func IsOpen(t Target, now time.Time) bool {
	if t.OpensAt.IsZero() || t.ClosesAt.IsZero() {
		return true
	}
	return !t.OpensAt.After(now) && !t.ClosesAt.Before(now)
}

// IsEnded reports whether the feedback window has closed.
func IsEnded(t Target, now time.Time) bool {
	if t.ClosesAt.IsZero() {
		return true
	}
	return now.After(t.ClosesAt)
}

// QuestionIDUnion merges question id lists in precedence order, keeping the
// first occurrence of each id.
func QuestionIDUnion(idLists ...[]int) []int {
	seen := make(map[int]struct{})
	union := make([]int, 0)
	for _, ids := range idLists {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}
	return union
}
