package summary

import (
	"context"
	"time"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
)

type (
	AccessFlags struct {
		Read  bool `json:"read"`
		Write bool `json:"write"`
		Admin bool `json:"admin"`
	}

	// OrganisationAccess is one entry of the requesting user's organisation
	// access list, resolved by the IAM integration upstream of this service.
	OrganisationAccess struct {
		Organisation course.Organisation `json:"organisation"`
		Access       AccessFlags         `json:"access"`
	}

	DateRange struct {
		StartDate time.Time `json:"startDate"`
		EndDate   time.Time `json:"endDate"`
	}

	// Row is one (organisation, course unit) aggregate produced by the
	// storage layer; the service folds rows into per-organisation summaries.
	Row struct {
		OrganisationID   string
		OrganisationName core.LocalizedString
		OrganisationCode string
		CourseUnitID     string
		CourseUnitName   core.LocalizedString
		CourseCode       string
		FeedbackCount    int
		StudentCount     int
	}

	// RealisationRow is one course-realisation aggregate for a course unit.
	RealisationRow struct {
		CourseRealisation course.CourseRealisation
		FeedbackTargetID  string
		FeedbackCount     int
		StudentCount      int
	}

	// RowQuery scopes the organisation aggregation. Realisations count toward
	// the period containing their start date: startDate <= start < endDate.
	// A row is visible when its organisation is in OrganisationIDs or its
	// realisation is in AccessibleRealisationIDs.
	RowQuery struct {
		OrganisationIDs          []string
		AccessibleRealisationIDs []string
		StartDate                time.Time
		EndDate                  time.Time
		IncludeOpenUniCourseUnits bool
	}

	CourseUnitSummary struct {
		CourseUnitID       string               `json:"courseUnitId"`
		Name               core.LocalizedString `json:"name"`
		CourseCode         string               `json:"courseCode"`
		FeedbackCount      int                  `json:"feedbackCount"`
		StudentCount       int                  `json:"studentCount"`
		FeedbackPercentage float64              `json:"feedbackPercentage"`
	}

	OrganisationSummary struct {
		ID                 string               `json:"id"`
		Name               core.LocalizedString `json:"name"`
		Code               string               `json:"code"`
		Access             AccessFlags          `json:"access"`
		FeedbackCount      int                  `json:"feedbackCount"`
		StudentCount       int                  `json:"studentCount"`
		FeedbackPercentage float64              `json:"feedbackPercentage"`
		CourseUnits        []CourseUnitSummary  `json:"courseUnits"`
	}

	CourseRealisationSummary struct {
		CourseRealisation  course.CourseRealisation `json:"courseRealisation"`
		FeedbackTargetID   string                   `json:"feedbackTargetId"`
		FeedbackCount      int                      `json:"feedbackCount"`
		StudentCount       int                      `json:"studentCount"`
		FeedbackPercentage float64                  `json:"feedbackPercentage"`
	}
)

// Repository is the read side of summary aggregation.
type Repository interface {
	// AccessibleCourseRealisationIDs lists realisations the user has TEACHER
	// access to, restricted to those started within the trailing 12 months.
	AccessibleCourseRealisationIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
	// HasTeacherAccessToCourseUnits reports whether the user is a teacher on
	// any target of the given course units.
	HasTeacherAccessToCourseUnits(ctx context.Context, userID string, courseUnitIDs []string) (bool, error)
	OrganisationRows(ctx context.Context, q RowQuery) ([]Row, error)
	CourseRealisationRows(ctx context.Context, courseCode string) ([]RealisationRow, error)

	UniversitySurvey(ctx context.Context) (feedback.Survey, error)
	ProgrammeSurveys(ctx context.Context, organisationCodes []string) ([]feedback.Survey, error)
	QuestionsByIDs(ctx context.Context, ids []int) ([]feedback.Question, error)
}
