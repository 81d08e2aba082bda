package course

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("course record not found")

// Repository is the persistence boundary for course units, realisations,
// organisations and their associations. Bulk operations are idempotent:
// association inserts ignore duplicates and upserts update on id conflict.
type Repository interface {
	// UpsertCourseUnits inserts new units and updates name, courseCode and
	// validityPeriod on existing ones, keyed by id.
	UpsertCourseUnits(ctx context.Context, units []CourseUnit) error
	// CourseUnitByCode returns the (oldest) course unit with the exact course
	// code, or ErrNotFound.
	CourseUnitByCode(ctx context.Context, code string) (CourseUnit, error)
	// CourseUnitByCodePrefix returns a course unit whose code starts with the
	// given prefix, case-insensitively, or ErrNotFound.
	CourseUnitByCodePrefix(ctx context.Context, prefix string) (CourseUnit, error)
	// CourseUnitsByCourseCode returns all units sharing a course code, most
	// recently updated first.
	CourseUnitsByCourseCode(ctx context.Context, code string) ([]CourseUnit, error)
	// ExistingCourseUnitIDs filters ids down to those already persisted.
	ExistingCourseUnitIDs(ctx context.Context, ids []string) ([]string, error)
	CreateCourseUnitOrganisations(ctx context.Context, links []CourseUnitOrganisation) error
	// PrimaryOrganisationID returns the PRIMARY organisation of a course
	// unit, or ErrNotFound when the unit has no PRIMARY link.
	PrimaryOrganisationID(ctx context.Context, courseUnitID string) (string, error)

	CourseRealisationDates(ctx context.Context, id string) (RealisationDates, error)
	CreateCourseRealisation(ctx context.Context, cr CourseRealisation) error
	UpdateCourseRealisation(ctx context.Context, cr CourseRealisation) error
	CreateCourseRealisationOrganisations(ctx context.Context, links []CourseRealisationOrganisation) error
	DeleteCourseRealisationOrganisations(ctx context.Context, realisationIDs []string) (int, error)
	DeleteCourseRealisations(ctx context.Context, ids []string) (int, error)

	OrganisationsByCourseUnitID(ctx context.Context, courseUnitID string) ([]Organisation, error)
}
