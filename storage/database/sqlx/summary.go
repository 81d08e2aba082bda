package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
	"github.com/opiskelu/palaute/core/summary"
)

type summaryRepository struct {
	db core.DBExecutor
}

var _ summary.Repository = (*summaryRepository)(nil) // interface compliance check

func NewSummaryRepository(db core.DBExecutor) *summaryRepository {
	return &summaryRepository{db: db}
}

func (repo *summaryRepository) AccessibleCourseRealisationIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	ids := make([]string, 0)
	query := `
		SELECT DISTINCT ft.course_realisation_id
		FROM user_feedback_targets ut
		JOIN feedback_targets ft ON ft.id = ut.feedback_target_id
		JOIN course_realisations cr ON cr.id = ft.course_realisation_id
		WHERE ut.user_id = $1 AND ut.access_status IN ($2, $3) AND cr.start_date >= $4`
	err := repo.db.SelectContext(ctx, &ids, query,
		userID, feedback.AccessTeacher, feedback.AccessResponsibleTeacher, now.AddDate(-1, 0, 0))
	if err != nil {
		return nil, errors.Wrap(err, "querying accessible course realisations")
	}
	return ids, nil
}

func (repo *summaryRepository) HasTeacherAccessToCourseUnits(ctx context.Context, userID string, courseUnitIDs []string) (bool, error) {
	if len(courseUnitIDs) == 0 {
		return false, nil
	}

	query, args, err := sqlx.In(`
		SELECT EXISTS (
			SELECT 1
			FROM user_feedback_targets ut
			JOIN feedback_targets ft ON ft.id = ut.feedback_target_id
			WHERE ut.user_id = ? AND ut.access_status IN (?) AND ft.course_unit_id IN (?)
		)`, userID, []string{feedback.AccessTeacher, feedback.AccessResponsibleTeacher}, courseUnitIDs)
	if err != nil {
		return false, errors.Wrap(err, "checking teacher access")
	}
	var has bool
	if err = repo.db.GetContext(ctx, &has, repo.db.Rebind(query), args...); err != nil {
		return false, errors.Wrap(err, "checking teacher access")
	}
	return has, nil
}

type summaryRow struct {
	OrganisationID   string               `db:"organisation_id"`
	OrganisationName core.LocalizedString `db:"organisation_name"`
	OrganisationCode string               `db:"organisation_code"`
	CourseUnitID     string               `db:"course_unit_id"`
	CourseUnitName   core.LocalizedString `db:"course_unit_name"`
	CourseCode       string               `db:"course_code"`
	FeedbackCount    int                  `db:"feedback_count"`
	StudentCount     int                  `db:"student_count"`
}

func (repo *summaryRepository) OrganisationRows(ctx context.Context, q summary.RowQuery) ([]summary.Row, error) {
	if len(q.OrganisationIDs) == 0 && len(q.AccessibleRealisationIDs) == 0 {
		return nil, nil
	}

	// organisation access grants all realisations of the organisation; teacher
	// access grants the caller's own realisations wherever they live
	access := make([]string, 0, 2)
	args := []interface{}{feedback.TypeCourseRealisation, feedback.AccessStudent}
	if len(q.OrganisationIDs) > 0 {
		access = append(access, "o.id IN (?)")
		args = append(args, q.OrganisationIDs)
	}
	if len(q.AccessibleRealisationIDs) > 0 {
		access = append(access, "cr.id IN (?)")
		args = append(args, q.AccessibleRealisationIDs)
	}

	query := `
		SELECT o.id AS organisation_id, o.name AS organisation_name, o.code AS organisation_code,
			cu.id AS course_unit_id, cu.name AS course_unit_name, cu.course_code,
			COUNT(ut.id) FILTER (WHERE ut.feedback_id IS NOT NULL) AS feedback_count,
			COUNT(ut.id) AS student_count
		FROM organisations o
		JOIN course_unit_organisations cuo ON cuo.organisation_id = o.id
		JOIN course_units cu ON cu.id = cuo.course_unit_id
		JOIN feedback_targets ft ON ft.course_unit_id = cu.id AND ft.feedback_type = ?
		JOIN course_realisations cr ON cr.id = ft.course_realisation_id
		LEFT JOIN user_feedback_targets ut ON ut.feedback_target_id = ft.id AND ut.access_status = ?
		WHERE (` + strings.Join(access, " OR ") + `) AND cr.start_date >= ? AND cr.start_date < ?`
	args = append(args, q.StartDate, q.EndDate)
	if !q.IncludeOpenUniCourseUnits {
		query += " AND cu.course_code NOT LIKE ?"
		args = append(args, course.OpenUniversityPrefix+"%")
	}
	query += `
		GROUP BY o.id, o.name, o.code, cu.id, cu.name, cu.course_code
		HAVING COUNT(ut.id) > 0`

	inQuery, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying organisation summary rows")
	}
	var rows []summaryRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(inQuery), inArgs...); err != nil {
		return nil, errors.Wrap(err, "querying organisation summary rows")
	}

	results := make([]summary.Row, 0, len(rows))
	for _, row := range rows {
		results = append(results, summary.Row(row))
	}
	return results, nil
}

type realisationSummaryRow struct {
	ID                        string               `db:"id"`
	Name                      core.LocalizedString `db:"name"`
	StartDate                 null.Time            `db:"start_date"`
	EndDate                   null.Time            `db:"end_date"`
	EducationalInstitutionURN null.String          `db:"educational_institution_urn"`
	IsMoocCourse              bool                 `db:"is_mooc_course"`
	TeachingLanguages         types.StringArray    `db:"teaching_languages"`
	CreatedAt                 time.Time            `db:"created_at"`
	UpdatedAt                 time.Time            `db:"updated_at"`
	FeedbackTargetID          string               `db:"feedback_target_id"`
	FeedbackCount             int                  `db:"feedback_count"`
	StudentCount              int                  `db:"student_count"`
}

func (repo *summaryRepository) CourseRealisationRows(ctx context.Context, courseCode string) ([]summary.RealisationRow, error) {
	query := `
		SELECT cr.id, cr.name, cr.start_date, cr.end_date, cr.educational_institution_urn,
			cr.is_mooc_course, cr.teaching_languages, cr.created_at, cr.updated_at,
			ft.id AS feedback_target_id,
			COUNT(ut.id) FILTER (WHERE ut.feedback_id IS NOT NULL) AS feedback_count,
			COUNT(ut.id) AS student_count
		FROM feedback_targets ft
		JOIN course_units cu ON cu.id = ft.course_unit_id
		JOIN course_realisations cr ON cr.id = ft.course_realisation_id
		LEFT JOIN user_feedback_targets ut ON ut.feedback_target_id = ft.id AND ut.access_status = $1
		WHERE cu.course_code = $2 AND ft.feedback_type = $3
		GROUP BY cr.id, cr.name, cr.start_date, cr.end_date, cr.educational_institution_urn,
			cr.is_mooc_course, cr.teaching_languages, cr.created_at, cr.updated_at, ft.id
		ORDER BY cr.start_date DESC NULLS LAST`
	var rows []realisationSummaryRow
	err := repo.db.SelectContext(ctx, &rows, query, feedback.AccessStudent, courseCode, feedback.TypeCourseRealisation)
	if err != nil {
		return nil, errors.Wrap(err, "querying course realisation summary rows")
	}

	results := make([]summary.RealisationRow, 0, len(rows))
	for _, row := range rows {
		results = append(results, summary.RealisationRow{
			CourseRealisation: course.CourseRealisation{
				ID:                        row.ID,
				Name:                      row.Name,
				StartDate:                 row.StartDate,
				EndDate:                   row.EndDate,
				EducationalInstitutionURN: row.EducationalInstitutionURN,
				IsMoocCourse:              row.IsMoocCourse,
				TeachingLanguages:         row.TeachingLanguages,
				CreatedAt:                 row.CreatedAt,
				UpdatedAt:                 row.UpdatedAt,
			},
			FeedbackTargetID: row.FeedbackTargetID,
			FeedbackCount:    row.FeedbackCount,
			StudentCount:     row.StudentCount,
		})
	}
	return results, nil
}

type surveyRow struct {
	ID                string           `db:"id"`
	Type              string           `db:"type"`
	TypeID            null.String      `db:"type_id"`
	FeedbackTargetID  null.String      `db:"feedback_target_id"`
	QuestionIDs       types.Int64Array `db:"question_ids"`
	PublicQuestionIDs types.Int64Array `db:"public_question_ids"`
}

func (r surveyRow) survey() feedback.Survey {
	return feedback.Survey{
		ID:                r.ID,
		Type:              r.Type,
		TypeID:            r.TypeID,
		FeedbackTargetID:  r.FeedbackTargetID,
		QuestionIDs:       intSlice(r.QuestionIDs),
		PublicQuestionIDs: intSlice(r.PublicQuestionIDs),
	}
}

const surveyColumns = "id, type, type_id, feedback_target_id, question_ids, public_question_ids"

func (repo *summaryRepository) UniversitySurvey(ctx context.Context) (feedback.Survey, error) {
	var row surveyRow
	query := "SELECT " + surveyColumns + " FROM surveys WHERE type = $1 LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, query, feedback.SurveyUniversity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return feedback.Survey{}, feedback.ErrNotFound
		}
		return feedback.Survey{}, errors.Wrap(err, "getting university survey")
	}
	return row.survey(), nil
}

func (repo *summaryRepository) ProgrammeSurveys(ctx context.Context, organisationCodes []string) ([]feedback.Survey, error) {
	if len(organisationCodes) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT "+surveyColumns+" FROM surveys WHERE type = ? AND type_id IN (?)",
		feedback.SurveyProgramme, organisationCodes)
	if err != nil {
		return nil, errors.Wrap(err, "querying programme surveys")
	}
	var rows []surveyRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying programme surveys")
	}
	surveys := make([]feedback.Survey, 0, len(rows))
	for _, row := range rows {
		surveys = append(surveys, row.survey())
	}
	return surveys, nil
}

type questionRow struct {
	ID       int                  `db:"id"`
	Type     string               `db:"type"`
	Required bool                 `db:"required"`
	Label    core.LocalizedString `db:"label"`
}

func (repo *summaryRepository) QuestionsByIDs(ctx context.Context, ids []int) ([]feedback.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT id, type, required, label FROM questions WHERE id IN (?)", ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	var rows []questionRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}

	// keep the precedence order of the requested ids
	byID := make(map[int]feedback.Question, len(rows))
	for _, row := range rows {
		byID[row.ID] = feedback.Question(row)
	}
	questions := make([]feedback.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			questions = append(questions, q)
		}
	}
	return questions, nil
}
