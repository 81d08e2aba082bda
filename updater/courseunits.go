package updater

import (
	"context"
	"regexp"
	"sort"

	"github.com/pkg/errors"

	"github.com/opiskelu/palaute/core/course"
)

var numericRunRegexp = regexp.MustCompile(`[0-9.]+`)

// createCourseUnits reconciles a batch of feed course units: upsert the units
// themselves, then attribute each to its organisations. Open-university
// courses are attributed to their non-open parent's PRIMARY organisation when
// one can be found.
func (u *Updater) createCourseUnits(ctx context.Context, courseUnits []FeedCourseUnit) error {
	seen := make(map[string]struct{}, len(courseUnits))
	units := make([]course.CourseUnit, 0, len(courseUnits))
	for _, cu := range courseUnits {
		if _, ok := seen[cu.ID]; ok {
			continue // first occurrence wins
		}
		seen[cu.ID] = struct{}{}
		units = append(units, course.CourseUnit{
			ID:             cu.ID,
			Name:           cu.Name,
			CourseCode:     cu.Code,
			ValidityPeriod: cu.ValidityPeriod,
		})
	}

	if err := u.courses.UpsertCourseUnits(ctx, units); err != nil {
		return errors.Wrap(err, "upserting course units")
	}

	links := make([]course.CourseUnitOrganisation, 0, len(courseUnits))
	for _, cu := range courseUnits {
		if course.IsOpenUniversity(cu.Code) {
			continue
		}
		links = append(links, organisationLinks(cu)...)
	}
	if err := u.courses.CreateCourseUnitOrganisations(ctx, links); err != nil {
		return errors.Wrap(err, "creating course unit organisations")
	}

	openLinks := make([]course.CourseUnitOrganisation, 0)
	for _, cu := range courseUnits {
		if !course.IsOpenUniversity(cu.Code) {
			continue
		}
		openLinks = append(openLinks, u.resolveOpenCourseOrganisation(ctx, cu))
	}
	if err := u.courses.CreateCourseUnitOrganisations(ctx, openLinks); err != nil {
		return errors.Wrap(err, "creating open course unit organisations")
	}
	return nil
}

// organisationLinks sorts the unit's organisations by descending share and
// assigns the top share PRIMARY, the rest DIRECT.
func organisationLinks(cu FeedCourseUnit) []course.CourseUnitOrganisation {
	orgs := make([]FeedOrganisation, len(cu.Organisations))
	copy(orgs, cu.Organisations)
	sort.SliceStable(orgs, func(i, j int) bool { return orgs[i].Share > orgs[j].Share })

	links := make([]course.CourseUnitOrganisation, 0, len(orgs))
	for i, org := range orgs {
		typ := course.OrgTypeDirect
		if i == 0 {
			typ = course.OrgTypePrimary
		}
		links = append(links, course.CourseUnitOrganisation{
			CourseUnitID:   cu.ID,
			OrganisationID: org.OrganisationID.String,
			Type:           typ,
		})
	}
	return links
}

// resolveOpenCourseOrganisation attributes an open-university course to an
// organisation. Tries the non-open parent's PRIMARY organisation first and
// falls back to the open course's own first organisation. Matching is
// best-effort: any lookup failure degrades to "no match".
func (u *Updater) resolveOpenCourseOrganisation(ctx context.Context, cu FeedCourseUnit) course.CourseUnitOrganisation {
	ownLink := course.CourseUnitOrganisation{
		CourseUnitID: cu.ID,
		Type:         course.OrgTypePrimary,
	}
	if len(cu.Organisations) > 0 {
		ownLink.OrganisationID = cu.Organisations[0].OrganisationID.String
	}

	parent, ok := u.findMatchingCourseUnit(ctx, cu)
	if !ok {
		// actual open course?
		return ownLink
	}

	orgID, err := u.courses.PrimaryOrganisationID(ctx, parent.ID)
	if err != nil {
		if !errors.Is(err, course.ErrNotFound) {
			u.logger.Warn("[UPDATER] primary organisation lookup failed", err, cu.Code)
			return ownLink
		}
		u.logger.Info("[UPDATER] old course unit without PRIMARY organisation", parent.CourseCode)
		return ownLink
	}

	return course.CourseUnitOrganisation{
		CourseUnitID:   cu.ID,
		OrganisationID: orgID,
		Type:           course.OrgTypePrimary,
	}
}

// findMatchingCourseUnit resolves an open-university course to its non-open
// parent: first by the exact code with the AY prefix stripped, then by the
// alphabetic code part preceding the first numeric run. The heuristic has no
// correctness guarantee; it preserves the registered behavior.
func (u *Updater) findMatchingCourseUnit(ctx context.Context, cu FeedCourseUnit) (course.CourseUnit, bool) {
	nonOpen, err := u.courses.CourseUnitByCode(ctx, cu.Code[2:])
	if err == nil {
		return nonOpen, true
	}
	if !errors.Is(err, course.ErrNotFound) {
		u.logger.Info("[UPDATER] open course match failed", err, cu.Code)
		return course.CourseUnit{}, false
	}

	loc := numericRunRegexp.FindStringIndex(cu.Code)
	if loc == nil {
		u.logger.Info("[UPDATER] course code with no numeric part", cu.Code)
		return course.CourseUnit{}, false
	}
	charCode := cu.Code[2:loc[0]]

	sameOrg, err := u.courses.CourseUnitByCodePrefix(ctx, charCode)
	if err != nil {
		if !errors.Is(err, course.ErrNotFound) {
			u.logger.Info("[UPDATER] open course match failed", err, cu.Code)
		}
		return course.CourseUnit{}, false
	}
	return sameOrg, true
}
