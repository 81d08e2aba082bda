package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opiskelu/palaute/core/feedback"
)

type feedbackRepository struct {
	db *DB
}

var _ feedback.Repository = (*feedbackRepository)(nil)

func NewFeedbackRepository(db *DB) *feedbackRepository {
	return &feedbackRepository{db: db}
}

func (repo *feedbackRepository) TargetDatesInfoByRealisation(_ context.Context, realisationID string) (feedback.TargetDatesInfo, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.targets {
		if t.CourseRealisationID == realisationID && t.FeedbackType == feedback.TypeCourseRealisation {
			return feedback.TargetDatesInfo{
				ID:                           t.ID,
				FeedbackDatesEditedByTeacher: t.FeedbackDatesEditedByTeacher,
			}, nil
		}
	}
	return feedback.TargetDatesInfo{}, feedback.ErrNotFound
}

func (repo *feedbackRepository) TypeIDsWithTeacherEditedDates(_ context.Context) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0)
	for _, t := range repo.db.targets {
		if t.FeedbackDatesEditedByTeacher {
			ids = append(ids, t.TypeID)
		}
	}
	return ids, nil
}

func (repo *feedbackRepository) UpsertTargets(_ context.Context, targets []feedback.Target, updateDates bool) ([]feedback.Target, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	now := time.Now().UTC()
	rows := make([]feedback.Target, 0, len(targets))
	for _, t := range targets {
		key := targetKey(t.FeedbackType, t.TypeID)
		if id, ok := repo.db.targetIDs[key]; ok {
			old := repo.db.targets[id]
			old.CourseUnitID = t.CourseUnitID
			old.CourseRealisationID = t.CourseRealisationID
			old.Name = t.Name
			old.Hidden = t.Hidden
			if updateDates {
				old.OpensAt = t.OpensAt
				old.ClosesAt = t.ClosesAt
			}
			old.UpdatedAt = now
			rows = append(rows, *old)
			continue
		}
		t := t
		t.ID = uuid.New().String()
		t.CreatedAt = now
		t.UpdatedAt = now
		repo.db.targets[t.ID] = &t
		repo.db.targetIDs[key] = t.ID
		rows = append(rows, t)
	}
	return rows, nil
}

func (repo *feedbackRepository) CreateUserTargets(_ context.Context, links []feedback.UserTarget) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, link := range links {
		if link.UserID == "" || link.FeedbackTargetID == "" {
			continue
		}
		key := userTargetKey(link)
		if _, ok := repo.db.userTargets[key]; ok {
			continue // ignore duplicates
		}
		link := link
		link.ID = uuid.New().String()
		repo.db.userTargets[key] = &link
	}
	return nil
}

func (repo *feedbackRepository) CreateDateCheck(_ context.Context, feedbackTargetID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.dateChecks = append(repo.db.dateChecks, feedback.DateCheck{
		ID:               uuid.New().String(),
		FeedbackTargetID: feedbackTargetID,
		CreatedAt:        time.Now().UTC(),
	})
	return nil
}

func (repo *feedbackRepository) ZeroFeedbackRealisationIDs(_ context.Context, realisationIDs []string) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	feedbackCounts := make(map[string]int, len(realisationIDs))
	for _, id := range realisationIDs {
		feedbackCounts[id] = 0
	}
	for _, t := range repo.db.targets {
		count, tracked := feedbackCounts[t.CourseRealisationID]
		if !tracked {
			continue
		}
		for _, ut := range repo.db.userTargets {
			if ut.FeedbackTargetID == t.ID && ut.FeedbackID.Valid {
				count++
			}
		}
		feedbackCounts[t.CourseRealisationID] = count
	}

	// realisations with no targets at all have no feedback either
	zero := make([]string, 0, len(realisationIDs))
	for _, id := range realisationIDs {
		if feedbackCounts[id] == 0 {
			zero = append(zero, id)
		}
	}
	return zero, nil
}

func (repo *feedbackRepository) TargetIDsByRealisation(_ context.Context, realisationIDs []string) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0)
	for _, t := range repo.db.targets {
		if contains(realisationIDs, t.CourseRealisationID) {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (repo *feedbackRepository) DeleteUserTargets(_ context.Context, targetIDs []string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	count := 0
	for key, ut := range repo.db.userTargets {
		if contains(targetIDs, ut.FeedbackTargetID) {
			delete(repo.db.userTargets, key)
			count++
		}
	}
	return count, nil
}

func (repo *feedbackRepository) DeleteSurveys(_ context.Context, targetIDs []string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	count := 0
	for id, s := range repo.db.surveys {
		if s.FeedbackTargetID.Valid && contains(targetIDs, s.FeedbackTargetID.String) {
			delete(repo.db.surveys, id)
			count++
		}
	}
	return count, nil
}

func (repo *feedbackRepository) DeleteTargets(_ context.Context, ids []string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	count := 0
	for _, id := range ids {
		t, ok := repo.db.targets[id]
		if !ok {
			continue
		}
		delete(repo.db.targetIDs, targetKey(t.FeedbackType, t.TypeID))
		delete(repo.db.targets, id)
		count++
	}
	return count, nil
}

func (repo *feedbackRepository) DeleteProvisionalTeacherAccess(_ context.Context, protectedUserIDs []string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	count := 0
	for key, ut := range repo.db.userTargets {
		if ut.AccessStatus != feedback.AccessTeacher || ut.FeedbackID.Valid {
			continue
		}
		if contains(protectedUserIDs, ut.UserID) {
			continue
		}
		delete(repo.db.userTargets, key)
		count++
	}
	return count, nil
}

// Notification selection.

func (repo *feedbackRepository) OpenTargetsForStudents(_ context.Context, now, oldestStart time.Time) ([]feedback.EmailTarget, error) {
	return repo.emailTargets(feedback.AccessStudent, func(t *feedback.Target) bool {
		cr, ok := repo.db.courseRealisations[t.CourseRealisationID]
		if !ok || !cr.StartDate.Valid || !cr.StartDate.Time.After(oldestStart) {
			return false
		}
		return t.OpensAt.After(now.AddDate(0, 0, -3)) && t.ClosesAt.After(now) && feedback.IsOpen(*t, now)
	})
}

func (repo *feedbackRepository) TargetsAboutToOpenForTeachers(_ context.Context, now, oldestStart time.Time) ([]feedback.EmailTarget, error) {
	return repo.emailTargets(feedback.AccessTeacher, func(t *feedback.Target) bool {
		cr, ok := repo.db.courseRealisations[t.CourseRealisationID]
		if !ok || !cr.StartDate.Valid || !cr.StartDate.Time.After(oldestStart) {
			return false
		}
		return !t.FeedbackOpeningReminderEmailSent &&
			t.OpensAt.After(now.AddDate(0, 0, 6)) && t.OpensAt.Before(now.AddDate(0, 0, 7))
	})
}

func (repo *feedbackRepository) TargetsWithoutResponseForTeachers(_ context.Context, now, oldestStart time.Time) ([]feedback.EmailTarget, error) {
	return repo.emailTargets(feedback.AccessTeacher, func(t *feedback.Target) bool {
		cr, ok := repo.db.courseRealisations[t.CourseRealisationID]
		if !ok || !cr.StartDate.Valid || !cr.StartDate.Time.After(oldestStart) {
			return false
		}
		return !t.FeedbackResponseReminderEmailSent && !t.FeedbackResponse.Valid &&
			t.ClosesAt.Before(now) && t.ClosesAt.After(now.AddDate(0, 0, -3))
	})
}

func (repo *feedbackRepository) emailTargets(accessStatus string, match func(*feedback.Target) bool) ([]feedback.EmailTarget, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	results := make([]feedback.EmailTarget, 0)
	for _, t := range repo.db.targets {
		if t.Hidden || t.FeedbackType != feedback.TypeCourseRealisation || !match(t) {
			continue
		}

		et := feedback.EmailTarget{Target: *t}
		if cu, ok := repo.db.courseUnits[t.CourseUnitID]; ok {
			et.CourseName = cu.Name
			et.CourseCode = cu.CourseCode
		}
		for _, link := range repo.db.courseUnitOrgs {
			if link.CourseUnitID != t.CourseUnitID {
				continue
			}
			if org, ok := repo.db.organisations[link.OrganisationID]; ok {
				et.DisabledCourseCodes = append(et.DisabledCourseCodes, org.DisabledCourseCodes...)
			}
		}
		for _, ut := range repo.db.userTargets {
			if ut.FeedbackTargetID != t.ID || ut.AccessStatus != accessStatus {
				continue
			}
			recipient := feedback.Recipient{
				UserID:                ut.UserID,
				AccessStatus:          ut.AccessStatus,
				FeedbackOpenEmailSent: ut.FeedbackOpenEmailSent,
			}
			if u, ok := repo.db.users[ut.UserID]; ok {
				recipient.Username = u.Username
				recipient.Email = u.Email
				recipient.Language = u.Language
			}
			et.Recipients = append(et.Recipients, recipient)
		}
		if len(et.Recipients) > 0 {
			results = append(results, et)
		}
	}
	return results, nil
}

func (repo *feedbackRepository) MarkFeedbackOpenEmailSent(_ context.Context, refs []feedback.UserTargetRef) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, ref := range refs {
		for _, ut := range repo.db.userTargets {
			if ut.UserID == ref.UserID && ut.FeedbackTargetID == ref.FeedbackTargetID {
				ut.FeedbackOpenEmailSent = true
			}
		}
	}
	return nil
}

func (repo *feedbackRepository) MarkOpeningReminderEmailSent(_ context.Context, targetIDs []string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range targetIDs {
		if t, ok := repo.db.targets[id]; ok {
			t.FeedbackOpeningReminderEmailSent = true
		}
	}
	return nil
}

func (repo *feedbackRepository) MarkResponseReminderEmailSent(_ context.Context, targetIDs []string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range targetIDs {
		if t, ok := repo.db.targets[id]; ok {
			t.FeedbackResponseReminderEmailSent = true
		}
	}
	return nil
}
