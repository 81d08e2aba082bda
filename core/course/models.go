package course

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/opiskelu/palaute/core"
)

// Organisation association tiers, by enrollment share.
const (
	OrgTypePrimary = "PRIMARY"
	OrgTypeDirect  = "DIRECT"
)

// OpenUniversityPrefix marks open-university course codes. Open courses are
// heuristically attributed back to their non-open parent course.
const OpenUniversityPrefix = "AY"

type (
	// DatePeriod is a validity period stored as JSONB; either end may be open.
	DatePeriod struct {
		StartDate null.Time `json:"startDate,omitempty"`
		EndDate   null.Time `json:"endDate,omitempty"`
	}

	// CourseUnit is a canonical course definition reused across realisations.
	CourseUnit struct {
		ID             string               `json:"id"`
		Name           core.LocalizedString `json:"name"`
		CourseCode     string               `json:"courseCode"`
		ValidityPeriod DatePeriod           `json:"validityPeriod"`
		CreatedAt      time.Time            `json:"createdAt"`
		UpdatedAt      time.Time            `json:"updatedAt"`
	}

	// CourseRealisation is one concrete offering of a course unit. Its dates
	// always mirror the study registry; only derived feedback windows are
	// protected from upstream changes.
	CourseRealisation struct {
		ID                        string               `json:"id"`
		Name                      core.LocalizedString `json:"name"`
		StartDate                 null.Time            `json:"startDate"`
		EndDate                   null.Time            `json:"endDate"`
		EducationalInstitutionURN null.String          `json:"educationalInstitutionUrn"`
		IsMoocCourse              bool                 `json:"isMoocCourse"`
		TeachingLanguages         []string             `json:"teachingLanguages"`
		CreatedAt                 time.Time            `json:"createdAt"`
		UpdatedAt                 time.Time            `json:"updatedAt"`
	}

	// RealisationDates is the {id, startDate, endDate} projection used by the
	// reconciler's date-change detection.
	RealisationDates struct {
		ID        string
		StartDate null.Time
		EndDate   null.Time
	}

	Organisation struct {
		ID                           string               `json:"id"`
		Name                         core.LocalizedString `json:"name"`
		Code                         string               `json:"code"`
		DisabledCourseCodes          []string             `json:"disabledCourseCodes"`
		StudentListVisibleCourseCodes []string            `json:"studentListVisibleCourseCodes"`
	}

	CourseUnitOrganisation struct {
		CourseUnitID   string `json:"courseUnitId"`
		OrganisationID string `json:"organisationId"`
		Type           string `json:"type"` // PRIMARY | DIRECT
	}

	CourseRealisationOrganisation struct {
		CourseRealisationID string `json:"courseRealisationId"`
		OrganisationID      string `json:"organisationId"`
		Type                string `json:"type"` // PRIMARY | DIRECT
	}
)

func (p DatePeriod) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *DatePeriod) Scan(src interface{}) error {
	if src == nil {
		*p = DatePeriod{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return pkgerrors.Errorf("DatePeriod.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, p)
}

// IsOpenUniversity reports whether the course code belongs to the open
// university variant of a course.
func IsOpenUniversity(courseCode string) bool {
	return len(courseCode) >= len(OpenUniversityPrefix) &&
		courseCode[:len(OpenUniversityPrefix)] == OpenUniversityPrefix
}

// HasEnded reports whether the realisation's end date has passed.
func HasEnded(cr CourseRealisation, now time.Time) bool {
	if !cr.EndDate.Valid {
		return false
	}
	return now.After(cr.EndDate.Time)
}

// FeedbackEnabled reports whether feedback collection is enabled for the
// given course code in any of the organisations; a code listed in an
// organisation's DisabledCourseCodes suppresses feedback.
func FeedbackEnabled(courseCode string, orgs []Organisation) bool {
	for _, org := range orgs {
		for _, code := range org.DisabledCourseCodes {
			if code == courseCode {
				return false
			}
		}
	}
	return true
}
