package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/types"
	"github.com/volatiletech/strmangle"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/feedback"
)

type feedbackRepository struct {
	db core.DBExecutor
}

var _ feedback.Repository = (*feedbackRepository)(nil) // interface compliance check

func NewFeedbackRepository(db core.DBExecutor) *feedbackRepository {
	return &feedbackRepository{db: db}
}

type feedbackTargetRow struct {
	ID                           string               `db:"id"`
	FeedbackType                 string               `db:"feedback_type"`
	TypeID                       string               `db:"type_id"`
	CourseUnitID                 string               `db:"course_unit_id"`
	CourseRealisationID          string               `db:"course_realisation_id"`
	Name                         core.LocalizedString `db:"name"`
	Hidden                       bool                 `db:"hidden"`
	OpensAt                      null.Time            `db:"opens_at"`
	ClosesAt                     null.Time            `db:"closes_at"`
	FeedbackDatesEditedByTeacher bool                 `db:"feedback_dates_edited_by_teacher"`
	FeedbackResponse             null.String          `db:"feedback_response"`
	FeedbackVisibility           string               `db:"feedback_visibility"`
	PublicQuestionIDs            types.Int64Array     `db:"public_question_ids"`

	FeedbackResponseEmailSent         bool `db:"feedback_response_email_sent"`
	FeedbackOpenNotificationEmailSent bool `db:"feedback_open_notification_email_sent"`
	FeedbackOpeningReminderEmailSent  bool `db:"feedback_opening_reminder_email_sent"`
	FeedbackResponseReminderEmailSent bool `db:"feedback_response_reminder_email_sent"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r feedbackTargetRow) target() feedback.Target {
	return feedback.Target{
		ID:                           r.ID,
		FeedbackType:                 r.FeedbackType,
		TypeID:                       r.TypeID,
		CourseUnitID:                 r.CourseUnitID,
		CourseRealisationID:          r.CourseRealisationID,
		Name:                         r.Name,
		Hidden:                       r.Hidden,
		OpensAt:                      r.OpensAt.Time,
		ClosesAt:                     r.ClosesAt.Time,
		FeedbackDatesEditedByTeacher: r.FeedbackDatesEditedByTeacher,
		FeedbackResponse:             r.FeedbackResponse,
		FeedbackVisibility:           r.FeedbackVisibility,
		PublicQuestionIDs:            intSlice(r.PublicQuestionIDs),

		FeedbackResponseEmailSent:         r.FeedbackResponseEmailSent,
		FeedbackOpenNotificationEmailSent: r.FeedbackOpenNotificationEmailSent,
		FeedbackOpeningReminderEmailSent:  r.FeedbackOpeningReminderEmailSent,
		FeedbackResponseReminderEmailSent: r.FeedbackResponseReminderEmailSent,

		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func intSlice(arr types.Int64Array) []int {
	ints := make([]int, 0, len(arr))
	for _, v := range arr {
		ints = append(ints, int(v))
	}
	return ints
}

// trapFeedbackNoRowsErr maps psql "no rows" err to feedback.ErrNotFound
func trapFeedbackNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const feedbackTargetColumns = `id, feedback_type, type_id, course_unit_id, course_realisation_id, name, hidden,
	opens_at, closes_at, feedback_dates_edited_by_teacher, feedback_response, feedback_visibility,
	public_question_ids, feedback_response_email_sent, feedback_open_notification_email_sent,
	feedback_opening_reminder_email_sent, feedback_response_reminder_email_sent, created_at, updated_at`

func (repo *feedbackRepository) TargetDatesInfoByRealisation(ctx context.Context, realisationID string) (feedback.TargetDatesInfo, error) {
	var row struct {
		ID                           string `db:"id"`
		FeedbackDatesEditedByTeacher bool   `db:"feedback_dates_edited_by_teacher"`
	}
	query := `
		SELECT id, feedback_dates_edited_by_teacher FROM feedback_targets
		WHERE course_realisation_id = $1 AND feedback_type = $2 LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, query, realisationID, feedback.TypeCourseRealisation); err != nil {
		return feedback.TargetDatesInfo{}, trapFeedbackNoRowsErr(err, "getting feedback target dates info")
	}
	return feedback.TargetDatesInfo{ID: row.ID, FeedbackDatesEditedByTeacher: row.FeedbackDatesEditedByTeacher}, nil
}

func (repo *feedbackRepository) TypeIDsWithTeacherEditedDates(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	query := "SELECT type_id FROM feedback_targets WHERE feedback_dates_edited_by_teacher"
	if err := repo.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, errors.Wrap(err, "querying teacher-edited feedback targets")
	}
	return ids, nil
}

func (repo *feedbackRepository) UpsertTargets(ctx context.Context, targets []feedback.Target, updateDates bool) ([]feedback.Target, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(targets)*9)
	for _, t := range targets {
		args = append(args, uuid.New().String(), t.FeedbackType, t.TypeID, t.CourseUnitID, t.CourseRealisationID,
			t.Name, t.Hidden, nullTime(t.OpensAt), nullTime(t.ClosesAt))
	}
	query := `
		INSERT INTO feedback_targets
			(id, feedback_type, type_id, course_unit_id, course_realisation_id, name, hidden, opens_at, closes_at)
		VALUES ` + strmangle.Placeholders(true, len(args), 1, 9) + `
		ON CONFLICT (feedback_type, type_id) DO UPDATE
		SET course_unit_id = EXCLUDED.course_unit_id,
		    course_realisation_id = EXCLUDED.course_realisation_id,
		    name = EXCLUDED.name,
		    hidden = EXCLUDED.hidden,`
	if updateDates {
		query += `
		    opens_at = EXCLUDED.opens_at,
		    closes_at = EXCLUDED.closes_at,`
	}
	query += `
		    updated_at = now()
		RETURNING ` + feedbackTargetColumns

	var rows []feedbackTargetRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "upserting feedback targets")
	}
	persisted := make([]feedback.Target, 0, len(rows))
	for _, row := range rows {
		persisted = append(persisted, row.target())
	}
	return persisted, nil
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t, !t.IsZero())
}

func (repo *feedbackRepository) CreateUserTargets(ctx context.Context, links []feedback.UserTarget) error {
	args := make([]interface{}, 0, len(links)*5)
	rows := 0
	for _, link := range links {
		if link.UserID == "" || link.FeedbackTargetID == "" {
			continue
		}
		args = append(args, uuid.New().String(), link.UserID, link.FeedbackTargetID, link.AccessStatus, link.FeedbackID)
		rows++
	}
	if rows == 0 {
		return nil
	}

	query := `
		INSERT INTO user_feedback_targets (id, user_id, feedback_target_id, access_status, feedback_id)
		VALUES ` + strmangle.Placeholders(true, len(args), 1, 5) + `
		ON CONFLICT (user_id, feedback_target_id, access_status) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "creating user feedback targets")
	}
	return nil
}

func (repo *feedbackRepository) CreateDateCheck(ctx context.Context, feedbackTargetID string) error {
	query := "INSERT INTO feedback_target_date_checks (id, feedback_target_id) VALUES ($1, $2)"
	if _, err := repo.db.ExecContext(ctx, query, uuid.New().String(), feedbackTargetID); err != nil {
		return errors.Wrap(err, "creating date check")
	}
	return nil
}

func (repo *feedbackRepository) ZeroFeedbackRealisationIDs(ctx context.Context, realisationIDs []string) ([]string, error) {
	if len(realisationIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT cr.id
		FROM course_realisations cr
		LEFT JOIN feedback_targets ft ON ft.course_realisation_id = cr.id
		LEFT JOIN user_feedback_targets ut ON ut.feedback_target_id = ft.id AND ut.feedback_id IS NOT NULL
		WHERE cr.id IN (?)
		GROUP BY cr.id
		HAVING COUNT(ut.id) = 0`, realisationIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying zero-feedback realisations")
	}
	ids := make([]string, 0, len(realisationIDs))
	if err = repo.db.SelectContext(ctx, &ids, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying zero-feedback realisations")
	}
	return ids, nil
}

func (repo *feedbackRepository) TargetIDsByRealisation(ctx context.Context, realisationIDs []string) ([]string, error) {
	if len(realisationIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT id FROM feedback_targets WHERE course_realisation_id IN (?)", realisationIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying feedback target ids")
	}
	ids := make([]string, 0)
	if err = repo.db.SelectContext(ctx, &ids, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying feedback target ids")
	}
	return ids, nil
}

func (repo *feedbackRepository) DeleteUserTargets(ctx context.Context, targetIDs []string) (int, error) {
	return deleteIn(ctx, repo.db, "DELETE FROM user_feedback_targets WHERE feedback_target_id IN (?)",
		targetIDs, "deleting user feedback targets")
}

func (repo *feedbackRepository) DeleteSurveys(ctx context.Context, targetIDs []string) (int, error) {
	return deleteIn(ctx, repo.db, "DELETE FROM surveys WHERE feedback_target_id IN (?)", targetIDs, "deleting surveys")
}

func (repo *feedbackRepository) DeleteTargets(ctx context.Context, ids []string) (int, error) {
	return deleteIn(ctx, repo.db, "DELETE FROM feedback_targets WHERE id IN (?)", ids, "deleting feedback targets")
}

func (repo *feedbackRepository) DeleteProvisionalTeacherAccess(ctx context.Context, protectedUserIDs []string) (int, error) {
	query := "DELETE FROM user_feedback_targets WHERE access_status = ? AND feedback_id IS NULL"
	args := []interface{}{feedback.AccessTeacher}
	if len(protectedUserIDs) > 0 {
		query += " AND user_id NOT IN (?)"
		args = append(args, protectedUserIDs)
	}

	q, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting provisional teacher access")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), inArgs...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting provisional teacher access")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting provisional teacher access")
	}
	return int(count), nil
}

// Notification selection.

type emailTargetRow struct {
	feedbackTargetRow
	CourseName          core.LocalizedString `db:"course_name"`
	CourseCode          string               `db:"course_code"`
	DisabledCourseCodes types.StringArray    `db:"disabled_course_codes"`
}

type recipientRow struct {
	UserID                string `db:"user_id"`
	FeedbackTargetID      string `db:"feedback_target_id"`
	Username              string `db:"username"`
	Email                 string `db:"email"`
	Language              string `db:"language"`
	AccessStatus          string `db:"access_status"`
	FeedbackOpenEmailSent bool   `db:"feedback_open_email_sent"`
}

func (repo *feedbackRepository) OpenTargetsForStudents(ctx context.Context, now, oldestStart time.Time) ([]feedback.EmailTarget, error) {
	where := "ft.opens_at < :now AND ft.opens_at > :floor AND ft.closes_at > :now"
	params := map[string]interface{}{"now": now, "floor": now.AddDate(0, 0, -3), "oldest_start": oldestStart}
	return repo.emailTargets(ctx, where, params, feedback.AccessStudent)
}

func (repo *feedbackRepository) TargetsAboutToOpenForTeachers(ctx context.Context, now, oldestStart time.Time) ([]feedback.EmailTarget, error) {
	where := "NOT ft.feedback_opening_reminder_email_sent AND ft.opens_at > :floor AND ft.opens_at < :ceiling"
	params := map[string]interface{}{
		"floor":        now.AddDate(0, 0, 6),
		"ceiling":      now.AddDate(0, 0, 7),
		"oldest_start": oldestStart,
	}
	return repo.emailTargets(ctx, where, params, feedback.AccessTeacher)
}

func (repo *feedbackRepository) TargetsWithoutResponseForTeachers(ctx context.Context, now, oldestStart time.Time) ([]feedback.EmailTarget, error) {
	where := `NOT ft.feedback_response_reminder_email_sent AND ft.feedback_response IS NULL
		AND ft.closes_at < :now AND ft.closes_at > :floor`
	params := map[string]interface{}{"now": now, "floor": now.AddDate(0, 0, -3), "oldest_start": oldestStart}
	return repo.emailTargets(ctx, where, params, feedback.AccessTeacher)
}

func (repo *feedbackRepository) emailTargets(ctx context.Context, where string, params map[string]interface{}, accessStatus string) ([]feedback.EmailTarget, error) {
	query := `
		SELECT ft.*, cu.name AS course_name, cu.course_code,
			(SELECT COALESCE(array_agg(code), '{}') FROM (
				SELECT DISTINCT unnest(o.disabled_course_codes) AS code
				FROM organisations o
				JOIN course_unit_organisations cuo ON cuo.organisation_id = o.id
				WHERE cuo.course_unit_id = ft.course_unit_id
			) disabled) AS disabled_course_codes
		FROM feedback_targets ft
		JOIN course_units cu ON cu.id = ft.course_unit_id
		JOIN course_realisations cr ON cr.id = ft.course_realisation_id
		WHERE ft.feedback_type = :feedback_type AND NOT ft.hidden
			AND cr.start_date > :oldest_start
			AND ` + where
	params["feedback_type"] = feedback.TypeCourseRealisation

	q, args, err := sqlx.Named(query, params)
	if err != nil {
		return nil, errors.Wrap(err, "querying email targets")
	}
	var rows []emailTargetRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying email targets")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	targetIDs := make([]string, 0, len(rows))
	byID := make(map[string]*feedback.EmailTarget, len(rows))
	results := make([]feedback.EmailTarget, 0, len(rows))
	for _, row := range rows {
		targetIDs = append(targetIDs, row.ID)
		results = append(results, feedback.EmailTarget{
			Target:              row.target(),
			CourseName:          row.CourseName,
			CourseCode:          row.CourseCode,
			DisabledCourseCodes: row.DisabledCourseCodes,
		})
		byID[row.ID] = &results[len(results)-1]
	}

	recipients, err := repo.recipients(ctx, targetIDs, accessStatus)
	if err != nil {
		return nil, err
	}
	for _, r := range recipients {
		et := byID[r.FeedbackTargetID]
		et.Recipients = append(et.Recipients, feedback.Recipient{
			UserID:                r.UserID,
			Username:              r.Username,
			Email:                 r.Email,
			Language:              r.Language,
			AccessStatus:          r.AccessStatus,
			FeedbackOpenEmailSent: r.FeedbackOpenEmailSent,
		})
	}

	// targets without a single recipient are of no use to the scheduler
	withRecipients := make([]feedback.EmailTarget, 0, len(results))
	for _, et := range results {
		if len(et.Recipients) > 0 {
			withRecipients = append(withRecipients, et)
		}
	}
	return withRecipients, nil
}

func (repo *feedbackRepository) recipients(ctx context.Context, targetIDs []string, accessStatus string) ([]recipientRow, error) {
	query, args, err := sqlx.In(`
		SELECT ut.user_id, ut.feedback_target_id, ut.access_status, ut.feedback_open_email_sent,
			u.username, u.email, u.language
		FROM user_feedback_targets ut
		JOIN users u ON u.id = ut.user_id
		WHERE ut.access_status = ? AND ut.feedback_target_id IN (?)`, accessStatus, targetIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying email recipients")
	}
	var rows []recipientRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying email recipients")
	}
	return rows, nil
}

func (repo *feedbackRepository) MarkFeedbackOpenEmailSent(ctx context.Context, refs []feedback.UserTargetRef) error {
	if len(refs) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(refs)*2)
	for _, ref := range refs {
		args = append(args, ref.UserID, ref.FeedbackTargetID)
	}
	query := `
		UPDATE user_feedback_targets SET feedback_open_email_sent = TRUE
		WHERE (user_id, feedback_target_id) IN (` + strmangle.Placeholders(true, len(args), 1, 2) + ")"
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "marking feedback open emails sent")
	}
	return nil
}

func (repo *feedbackRepository) MarkOpeningReminderEmailSent(ctx context.Context, targetIDs []string) error {
	return repo.markSent(ctx, "feedback_opening_reminder_email_sent", targetIDs)
}

func (repo *feedbackRepository) MarkResponseReminderEmailSent(ctx context.Context, targetIDs []string) error {
	return repo.markSent(ctx, "feedback_response_reminder_email_sent", targetIDs)
}

func (repo *feedbackRepository) markSent(ctx context.Context, column string, targetIDs []string) error {
	if len(targetIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In("UPDATE feedback_targets SET "+column+" = TRUE WHERE id IN (?)", targetIDs)
	if err != nil {
		return errors.Wrap(err, "marking reminder emails sent")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "marking reminder emails sent")
	}
	return nil
}
