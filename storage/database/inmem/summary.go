package inmemdb

import (
	"context"
	"time"

	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
	"github.com/opiskelu/palaute/core/summary"
)

type summaryRepository struct {
	db *DB
}

var _ summary.Repository = (*summaryRepository)(nil)

func NewSummaryRepository(db *DB) *summaryRepository {
	return &summaryRepository{db: db}
}

func isTeacherAccess(status string) bool {
	return status == feedback.AccessTeacher || status == feedback.AccessResponsibleTeacher
}

func (repo *summaryRepository) AccessibleCourseRealisationIDs(_ context.Context, userID string, now time.Time) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	cutoff := now.AddDate(-1, 0, 0)
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, ut := range repo.db.userTargets {
		if ut.UserID != userID || !isTeacherAccess(ut.AccessStatus) {
			continue
		}
		t, ok := repo.db.targets[ut.FeedbackTargetID]
		if !ok {
			continue
		}
		cr, ok := repo.db.courseRealisations[t.CourseRealisationID]
		if !ok || !cr.StartDate.Valid || cr.StartDate.Time.Before(cutoff) {
			continue
		}
		if _, ok := seen[cr.ID]; ok {
			continue
		}
		seen[cr.ID] = struct{}{}
		ids = append(ids, cr.ID)
	}
	return ids, nil
}

func (repo *summaryRepository) HasTeacherAccessToCourseUnits(_ context.Context, userID string, courseUnitIDs []string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, ut := range repo.db.userTargets {
		if ut.UserID != userID || !isTeacherAccess(ut.AccessStatus) {
			continue
		}
		t, ok := repo.db.targets[ut.FeedbackTargetID]
		if ok && contains(courseUnitIDs, t.CourseUnitID) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *summaryRepository) OrganisationRows(_ context.Context, q summary.RowQuery) ([]summary.Row, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]summary.Row, 0)
	for _, link := range repo.db.courseUnitOrgs {
		orgAccess := contains(q.OrganisationIDs, link.OrganisationID)
		if !orgAccess && len(q.AccessibleRealisationIDs) == 0 {
			continue
		}
		org, ok := repo.db.organisations[link.OrganisationID]
		if !ok {
			continue
		}
		cu, ok := repo.db.courseUnits[link.CourseUnitID]
		if !ok {
			continue
		}
		if !q.IncludeOpenUniCourseUnits && course.IsOpenUniversity(cu.CourseCode) {
			continue
		}

		feedbackCount, studentCount := repo.courseUnitCounts(cu.ID, q, orgAccess)
		if studentCount == 0 {
			continue
		}
		rows = append(rows, summary.Row{
			OrganisationID:   org.ID,
			OrganisationName: org.Name,
			OrganisationCode: org.Code,
			CourseUnitID:     cu.ID,
			CourseUnitName:   cu.Name,
			CourseCode:       cu.CourseCode,
			FeedbackCount:    feedbackCount,
			StudentCount:     studentCount,
		})
	}
	return rows, nil
}

// courseUnitCounts aggregates across the unit's realisation targets that fall
// inside the query period. Without organisation access only the caller's own
// realisations count.
func (repo *summaryRepository) courseUnitCounts(courseUnitID string, q summary.RowQuery, orgAccess bool) (feedbackCount, studentCount int) {
	for _, t := range repo.db.targets {
		if t.CourseUnitID != courseUnitID || t.FeedbackType != feedback.TypeCourseRealisation {
			continue
		}
		cr, ok := repo.db.courseRealisations[t.CourseRealisationID]
		if !ok || !cr.StartDate.Valid {
			continue
		}
		// period membership: startDate <= start < endDate
		if cr.StartDate.Time.Before(q.StartDate) || !cr.StartDate.Time.Before(q.EndDate) {
			continue
		}
		if !orgAccess && !contains(q.AccessibleRealisationIDs, cr.ID) {
			continue
		}
		fc, sc := repo.targetCounts(t.ID)
		feedbackCount += fc
		studentCount += sc
	}
	return feedbackCount, studentCount
}

func (repo *summaryRepository) targetCounts(targetID string) (feedbackCount, studentCount int) {
	for _, ut := range repo.db.userTargets {
		if ut.FeedbackTargetID != targetID || ut.AccessStatus != feedback.AccessStudent {
			continue
		}
		studentCount++
		if ut.FeedbackID.Valid {
			feedbackCount++
		}
	}
	return feedbackCount, studentCount
}

func (repo *summaryRepository) CourseRealisationRows(_ context.Context, courseCode string) ([]summary.RealisationRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	unitIDs := make([]string, 0)
	for _, cu := range repo.db.courseUnits {
		if cu.CourseCode == courseCode {
			unitIDs = append(unitIDs, cu.ID)
		}
	}

	rows := make([]summary.RealisationRow, 0)
	for _, t := range repo.db.targets {
		if t.FeedbackType != feedback.TypeCourseRealisation || !contains(unitIDs, t.CourseUnitID) {
			continue
		}
		cr, ok := repo.db.courseRealisations[t.CourseRealisationID]
		if !ok {
			continue
		}
		fc, sc := repo.targetCounts(t.ID)
		rows = append(rows, summary.RealisationRow{
			CourseRealisation: *cr,
			FeedbackTargetID:  t.ID,
			FeedbackCount:     fc,
			StudentCount:      sc,
		})
	}
	return rows, nil
}

func (repo *summaryRepository) UniversitySurvey(_ context.Context) (feedback.Survey, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.surveys {
		if s.Type == feedback.SurveyUniversity {
			return *s, nil
		}
	}
	return feedback.Survey{}, feedback.ErrNotFound
}

func (repo *summaryRepository) ProgrammeSurveys(_ context.Context, organisationCodes []string) ([]feedback.Survey, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	surveys := make([]feedback.Survey, 0)
	for _, s := range repo.db.surveys {
		if s.Type == feedback.SurveyProgramme && s.TypeID.Valid && contains(organisationCodes, s.TypeID.String) {
			surveys = append(surveys, *s)
		}
	}
	return surveys, nil
}

func (repo *summaryRepository) QuestionsByIDs(_ context.Context, ids []int) ([]feedback.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	questions := make([]feedback.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := repo.db.questions[id]; ok {
			questions = append(questions, *q)
		}
	}
	return questions, nil
}
