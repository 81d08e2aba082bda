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
	"github.com/opiskelu/palaute/core/course"
)

type courseRepository struct {
	db core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DBExecutor) *courseRepository {
	return &courseRepository{db: db}
}

type courseUnitRow struct {
	ID             string               `db:"id"`
	CourseCode     string               `db:"course_code"`
	Name           core.LocalizedString `db:"name"`
	ValidityPeriod course.DatePeriod    `db:"validity_period"`
	CreatedAt      time.Time            `db:"created_at"`
	UpdatedAt      time.Time            `db:"updated_at"`
}

func (r courseUnitRow) courseUnit() course.CourseUnit {
	return course.CourseUnit{
		ID:             r.ID,
		Name:           r.Name,
		CourseCode:     r.CourseCode,
		ValidityPeriod: r.ValidityPeriod,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type organisationRow struct {
	ID                            string               `db:"id"`
	Name                          core.LocalizedString `db:"name"`
	Code                          string               `db:"code"`
	DisabledCourseCodes           types.StringArray    `db:"disabled_course_codes"`
	StudentListVisibleCourseCodes types.StringArray    `db:"student_list_visible_course_codes"`
}

func (r organisationRow) organisation() course.Organisation {
	return course.Organisation{
		ID:                            r.ID,
		Name:                          r.Name,
		Code:                          r.Code,
		DisabledCourseCodes:           r.DisabledCourseCodes,
		StudentListVisibleCourseCodes: r.StudentListVisibleCourseCodes,
	}
}

// trapCourseNoRowsErr maps psql "no rows" err to course.ErrNotFound
func trapCourseNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const courseUnitColumns = "id, course_code, name, validity_period, created_at, updated_at"

func (repo *courseRepository) UpsertCourseUnits(ctx context.Context, units []course.CourseUnit) error {
	if len(units) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(units)*4)
	for _, cu := range units {
		args = append(args, cu.ID, cu.CourseCode, cu.Name, cu.ValidityPeriod)
	}
	query := `
		INSERT INTO course_units (id, course_code, name, validity_period)
		VALUES ` + strmangle.Placeholders(true, len(args), 1, 4) + `
		ON CONFLICT (id) DO UPDATE
		SET course_code = EXCLUDED.course_code,
		    name = EXCLUDED.name,
		    validity_period = EXCLUDED.validity_period,
		    updated_at = now()`
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "upserting course units")
	}
	return nil
}

func (repo *courseRepository) CourseUnitByCode(ctx context.Context, code string) (course.CourseUnit, error) {
	var row courseUnitRow
	query := "SELECT " + courseUnitColumns + " FROM course_units WHERE course_code = $1 ORDER BY created_at ASC LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, query, code); err != nil {
		return course.CourseUnit{}, trapCourseNoRowsErr(err, "getting course unit by code")
	}
	return row.courseUnit(), nil
}

func (repo *courseRepository) CourseUnitByCodePrefix(ctx context.Context, prefix string) (course.CourseUnit, error) {
	var row courseUnitRow
	query := "SELECT " + courseUnitColumns + " FROM course_units WHERE course_code ILIKE $1 || '%' ORDER BY created_at ASC LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, query, prefix); err != nil {
		return course.CourseUnit{}, trapCourseNoRowsErr(err, "getting course unit by code prefix")
	}
	return row.courseUnit(), nil
}

func (repo *courseRepository) CourseUnitsByCourseCode(ctx context.Context, code string) ([]course.CourseUnit, error) {
	var rows []courseUnitRow
	query := "SELECT " + courseUnitColumns + " FROM course_units WHERE course_code = $1 ORDER BY updated_at DESC"
	if err := repo.db.SelectContext(ctx, &rows, query, code); err != nil {
		return nil, errors.Wrap(err, "querying course units by code")
	}
	units := make([]course.CourseUnit, 0, len(rows))
	for _, row := range rows {
		units = append(units, row.courseUnit())
	}
	return units, nil
}

func (repo *courseRepository) ExistingCourseUnitIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT id FROM course_units WHERE id IN (?)", ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying existing course unit ids")
	}
	existing := make([]string, 0, len(ids))
	if err = repo.db.SelectContext(ctx, &existing, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying existing course unit ids")
	}
	return existing, nil
}

func (repo *courseRepository) CreateCourseUnitOrganisations(ctx context.Context, links []course.CourseUnitOrganisation) error {
	if len(links) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(links)*4)
	for _, link := range links {
		args = append(args, uuid.New().String(), link.Type, link.CourseUnitID, link.OrganisationID)
	}
	query := `
		INSERT INTO course_unit_organisations (id, type, course_unit_id, organisation_id)
		VALUES ` + strmangle.Placeholders(true, len(args), 1, 4) + `
		ON CONFLICT (course_unit_id, organisation_id, type) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "creating course unit organisations")
	}
	return nil
}

func (repo *courseRepository) PrimaryOrganisationID(ctx context.Context, courseUnitID string) (string, error) {
	var id string
	query := "SELECT organisation_id FROM course_unit_organisations WHERE course_unit_id = $1 AND type = $2 LIMIT 1"
	if err := repo.db.GetContext(ctx, &id, query, courseUnitID, course.OrgTypePrimary); err != nil {
		return "", trapCourseNoRowsErr(err, "getting primary organisation")
	}
	return id, nil
}

func (repo *courseRepository) CourseRealisationDates(ctx context.Context, id string) (course.RealisationDates, error) {
	var row struct {
		ID        string    `db:"id"`
		StartDate null.Time `db:"start_date"`
		EndDate   null.Time `db:"end_date"`
	}
	query := "SELECT id, start_date, end_date FROM course_realisations WHERE id = $1"
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		return course.RealisationDates{}, trapCourseNoRowsErr(err, "getting course realisation dates")
	}
	return course.RealisationDates{ID: row.ID, StartDate: row.StartDate, EndDate: row.EndDate}, nil
}

func (repo *courseRepository) CreateCourseRealisation(ctx context.Context, cr course.CourseRealisation) error {
	query := `
		INSERT INTO course_realisations
			(id, name, start_date, end_date, educational_institution_urn, is_mooc_course, teaching_languages)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, query,
		cr.ID, cr.Name, cr.StartDate, cr.EndDate, cr.EducationalInstitutionURN,
		cr.IsMoocCourse, types.StringArray(cr.TeachingLanguages))
	return errors.Wrap(err, "creating course realisation")
}

func (repo *courseRepository) UpdateCourseRealisation(ctx context.Context, cr course.CourseRealisation) error {
	query := `
		UPDATE course_realisations
		SET name = $2,
		    start_date = $3,
		    end_date = $4,
		    educational_institution_urn = $5,
		    is_mooc_course = $6,
		    teaching_languages = $7,
		    updated_at = now()
		WHERE id = $1`
	_, err := repo.db.ExecContext(ctx, query,
		cr.ID, cr.Name, cr.StartDate, cr.EndDate, cr.EducationalInstitutionURN,
		cr.IsMoocCourse, types.StringArray(cr.TeachingLanguages))
	return errors.Wrap(err, "updating course realisation")
}

func (repo *courseRepository) CreateCourseRealisationOrganisations(ctx context.Context, links []course.CourseRealisationOrganisation) error {
	if len(links) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(links)*4)
	for _, link := range links {
		args = append(args, uuid.New().String(), link.Type, link.CourseRealisationID, link.OrganisationID)
	}
	query := `
		INSERT INTO course_realisation_organisations (id, type, course_realisation_id, organisation_id)
		VALUES ` + strmangle.Placeholders(true, len(args), 1, 4) + `
		ON CONFLICT (course_realisation_id, organisation_id, type) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "creating course realisation organisations")
	}
	return nil
}

func (repo *courseRepository) DeleteCourseRealisationOrganisations(ctx context.Context, realisationIDs []string) (int, error) {
	return deleteIn(ctx, repo.db, "DELETE FROM course_realisation_organisations WHERE course_realisation_id IN (?)",
		realisationIDs, "deleting course realisation organisations")
}

func (repo *courseRepository) DeleteCourseRealisations(ctx context.Context, ids []string) (int, error) {
	return deleteIn(ctx, repo.db, "DELETE FROM course_realisations WHERE id IN (?)", ids, "deleting course realisations")
}

func (repo *courseRepository) OrganisationsByCourseUnitID(ctx context.Context, courseUnitID string) ([]course.Organisation, error) {
	var rows []organisationRow
	query := `
		SELECT o.id, o.name, o.code, o.disabled_course_codes, o.student_list_visible_course_codes
		FROM organisations o
		JOIN course_unit_organisations cuo ON cuo.organisation_id = o.id
		WHERE cuo.course_unit_id = $1`
	if err := repo.db.SelectContext(ctx, &rows, query, courseUnitID); err != nil {
		return nil, errors.Wrap(err, "querying course unit organisations")
	}
	orgs := make([]course.Organisation, 0, len(rows))
	for _, row := range rows {
		orgs = append(orgs, row.organisation())
	}
	return orgs, nil
}
