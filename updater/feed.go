package updater

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
)

// Feed row shapes, as served by the study registry's
// course_unit_realisations_with_course_units table.
type (
	FeedOrganisation struct {
		OrganisationID            null.String `json:"organisationId"`
		Share                     float64     `json:"share"`
		RoleURN                   string      `json:"roleUrn"`
		EducationalInstitutionURN null.String `json:"educationalInstitutionUrn"`
	}

	FeedCourseUnit struct {
		ID             string               `json:"id"`
		Name           core.LocalizedString `json:"name"`
		Code           string               `json:"code"`
		ValidityPeriod course.DatePeriod    `json:"validityPeriod"`
		Organisations  []FeedOrganisation   `json:"organisations"`
	}

	ActivityPeriod struct {
		StartDate null.Time `json:"startDate"`
		EndDate   null.Time `json:"endDate"`
	}

	StudySubGroup struct {
		ID   string               `json:"id"`
		Name core.LocalizedString `json:"name"`
	}

	StudyGroupSet struct {
		Name           core.LocalizedString `json:"name"`
		StudySubGroups []StudySubGroup      `json:"studySubGroups"`
	}

	ResponsibilityInfo struct {
		PersonID null.String `json:"personId"`
		RoleURN  string      `json:"roleUrn"`
	}

	FeedRealisation struct {
		ID                           string               `json:"id"`
		Name                         core.LocalizedString `json:"name"`
		ActivityPeriod               ActivityPeriod       `json:"activityPeriod"`
		CourseUnits                  []FeedCourseUnit     `json:"courseUnits"`
		Organisations                []FeedOrganisation   `json:"organisations"`
		StudyGroupSets               []StudyGroupSet      `json:"studyGroupSets"`
		ResponsibilityInfos          []ResponsibilityInfo `json:"responsibilityInfos"`
		CustomCodeUrns               map[string][]string  `json:"customCodeUrns"`
		FlowState                    string               `json:"flowState"`
		CourseUnitRealisationTypeURN string               `json:"courseUnitRealisationTypeUrn"`
	}
)

// Source pages through the external feed table.
type Source interface {
	FetchPage(ctx context.Context, offset, limit int) ([]FeedRealisation, error)
}

// batchHandler processes one page of feed rows.
type batchHandler func(ctx context.Context, batch []FeedRealisation) error

// mangleFeed pulls the whole feed through the handler one page at a time.
// A failed page aborts the run; the scheduler retries the whole run later.
func mangleFeed(ctx context.Context, src Source, limit int, logger core.Logger, handle batchHandler) error {
	offset := 0
	for {
		batch, err := src.FetchPage(ctx, offset, limit)
		if err != nil {
			return errors.Wrapf(err, "fetching feed page at offset %d", offset)
		}
		if len(batch) == 0 {
			return nil
		}

		if err = handle(ctx, batch); err != nil {
			return errors.Wrapf(err, "handling feed page at offset %d", offset)
		}
		logger.Info(fmt.Sprintf("[UPDATER] processed %d feed rows", offset+len(batch)))

		if len(batch) < limit {
			return nil
		}
		offset += limit
	}
}
