package feedback

import (
	"context"
	"errors"
	"time"

	"github.com/opiskelu/palaute/core"
)

var ErrNotFound = errors.New("feedback target not found")

type (
	// Recipient is a user attached to a target through a UserTarget row,
	// joined with the user's contact details.
	Recipient struct {
		UserID                string
		Username              string
		Email                 string
		Language              string
		AccessStatus          string
		FeedbackOpenEmailSent bool
	}

	// EmailTarget is a feedback target joined with everything the
	// notification scheduler needs to build emails for it.
	EmailTarget struct {
		Target              Target
		CourseName          core.LocalizedString
		CourseCode          string
		DisabledCourseCodes []string
		Recipients          []Recipient
	}

	// UserTargetRef identifies one UserTarget row.
	UserTargetRef struct {
		UserID           string
		FeedbackTargetID string
	}
)

// Repository is the persistence boundary for feedback targets, user/target
// links, surveys and date checks.
type Repository interface {
	// TargetDatesInfoByRealisation returns the courseRealisation-type target
	// of the given realisation, projected to id + teacher-edit flag, or
	// ErrNotFound.
	TargetDatesInfoByRealisation(ctx context.Context, realisationID string) (TargetDatesInfo, error)
	// TypeIDsWithTeacherEditedDates lists typeIds of all targets whose
	// feedback window was edited by a teacher.
	TypeIDsWithTeacherEditedDates(ctx context.Context) ([]string, error)
	// UpsertTargets inserts or updates targets keyed by (feedbackType,
	// typeId). When updateDates is false, opensAt/closesAt of existing rows
	// are left untouched. Returns the persisted rows with ids filled in.
	UpsertTargets(ctx context.Context, targets []Target, updateDates bool) ([]Target, error)
	// CreateUserTargets inserts links, ignoring duplicates on
	// (userId, feedbackTargetId, accessStatus).
	CreateUserTargets(ctx context.Context, links []UserTarget) error
	CreateDateCheck(ctx context.Context, feedbackTargetID string) error

	// ZeroFeedbackRealisationIDs returns the subset of realisation ids whose
	// targets have received no feedback at all.
	ZeroFeedbackRealisationIDs(ctx context.Context, realisationIDs []string) ([]string, error)
	TargetIDsByRealisation(ctx context.Context, realisationIDs []string) ([]string, error)
	DeleteUserTargets(ctx context.Context, targetIDs []string) (int, error)
	DeleteSurveys(ctx context.Context, targetIDs []string) (int, error)
	DeleteTargets(ctx context.Context, ids []string) (int, error)
	// DeleteProvisionalTeacherAccess removes TEACHER links that carry no
	// feedback, except for the protected user ids. Deleting an empty set is
	// a no-op, so repeated sweeps are safe.
	DeleteProvisionalTeacherAccess(ctx context.Context, protectedUserIDs []string) (int, error)

	// Notification selection. oldestStart cuts off realisations started
	// before the platform went live.
	OpenTargetsForStudents(ctx context.Context, now, oldestStart time.Time) ([]EmailTarget, error)
	TargetsAboutToOpenForTeachers(ctx context.Context, now, oldestStart time.Time) ([]EmailTarget, error)
	TargetsWithoutResponseForTeachers(ctx context.Context, now, oldestStart time.Time) ([]EmailTarget, error)
	MarkFeedbackOpenEmailSent(ctx context.Context, refs []UserTargetRef) error
	MarkOpeningReminderEmailSent(ctx context.Context, targetIDs []string) error
	MarkResponseReminderEmailSent(ctx context.Context, targetIDs []string) error
}
