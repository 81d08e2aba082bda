package updater

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
)

// Custom code URNs carrying course metadata.
const (
	coordinatingOrganisationRoleURN = "urn:code:organisation-role:coordinating-organisation"
	studyOfferingURN                = "urn:code:custom:hy-university-root-id:opintotarjonta"
	moocOfferingURN                 = "urn:code:custom:hy-university-root-id:opintotarjonta:mooc"
	teachingLanguagesURN            = "urn:code:custom:hy-university-root-id:opetuskielet"
)

// realisationPeriod derives the stored dates from the feed activity period.
// The end date becomes the previous day at 23:59 local time, making it an
// inclusive end-of-day instant. A missing end date stays open-ended.
func realisationPeriod(activity ActivityPeriod, loc *time.Location) (null.Time, null.Time) {
	if !activity.EndDate.Valid {
		return activity.StartDate, null.Time{}
	}
	raw := activity.EndDate.Time
	end := time.Date(raw.Year(), raw.Month(), raw.Day(), 23, 59, 0, 0, loc).AddDate(0, 0, -1)
	return activity.StartDate, null.TimeFrom(end)
}

// educationalInstitutionURN picks the URN of the coordinating organisation.
// Logged when ambiguous; the first one wins.
func (u *Updater) educationalInstitutionURN(orgs []FeedOrganisation) null.String {
	var urn null.String
	count := 0
	for _, org := range orgs {
		if org.RoleURN != coordinatingOrganisationRoleURN || !org.EducationalInstitutionURN.Valid {
			continue
		}
		if count == 0 {
			urn = org.EducationalInstitutionURN
		}
		count++
	}
	if count > 1 {
		u.logger.Info("[UPDATER] more than one coordinating organisation")
	}
	return urn
}

func isMoocCourse(customCodeUrns map[string][]string) bool {
	for _, urn := range customCodeUrns[studyOfferingURN] {
		if urn == moocOfferingURN {
			return true
		}
	}
	return false
}

// teachingLanguages maps language URNs to their two-letter codes; nil when
// the feed carries no language data.
func teachingLanguages(customCodeUrns map[string][]string) []string {
	urns := customCodeUrns[teachingLanguagesURN]
	if len(urns) == 0 {
		return nil
	}
	languages := make([]string, 0, len(urns))
	for _, urn := range urns {
		if len(urn) >= 2 {
			languages = append(languages, urn[len(urn)-2:])
		}
	}
	return languages
}

// createCourseRealisations reconciles a batch of feed realisations against
// the stored rows. The realisation's own dates always follow the feed; only
// the derived feedback windows are protected, via date checks.
func (u *Updater) createCourseRealisations(ctx context.Context, realisations []FeedRealisation) error {
	for _, r := range realisations {
		startDate, endDate := realisationPeriod(r.ActivityPeriod, u.location)
		cr := course.CourseRealisation{
			ID:                        r.ID,
			Name:                      r.Name,
			StartDate:                 startDate,
			EndDate:                   endDate,
			EducationalInstitutionURN: u.educationalInstitutionURN(r.Organisations),
			IsMoocCourse:              isMoocCourse(r.CustomCodeUrns),
			TeachingLanguages:         teachingLanguages(r.CustomCodeUrns),
		}

		old, err := u.courses.CourseRealisationDates(ctx, r.ID)
		switch {
		case err == nil:
			if err = u.createDateCheck(ctx, old, cr); err != nil {
				return errors.Wrap(err, "creating date check")
			}
			if err = u.courses.UpdateCourseRealisation(ctx, cr); err != nil {
				return errors.Wrap(err, "updating course realisation")
			}
		case errors.Is(err, course.ErrNotFound):
			if err = u.courses.CreateCourseRealisation(ctx, cr); err != nil {
				return errors.Wrap(err, "creating course realisation")
			}
		default:
			return errors.Wrap(err, "getting course realisation")
		}
	}

	links := make([]course.CourseRealisationOrganisation, 0, len(realisations))
	for _, r := range realisations {
		links = append(links, realisationOrganisationLinks(r)...)
	}
	if err := u.courses.CreateCourseRealisationOrganisations(ctx, links); err != nil {
		return errors.Wrap(err, "creating course realisation organisations")
	}
	return nil
}

// createDateCheck flags the realisation's feedback target for manual review
// when the feed moved the course dates under a teacher-edited feedback window.
func (u *Updater) createDateCheck(ctx context.Context, old course.RealisationDates, updated course.CourseRealisation) error {
	info, err := u.feedbacks.TargetDatesInfoByRealisation(ctx, old.ID)
	if err != nil {
		if errors.Is(err, feedback.ErrNotFound) {
			return nil
		}
		return err
	}
	if !info.FeedbackDatesEditedByTeacher {
		return nil
	}
	if datesEqual(old.StartDate, updated.StartDate) && datesEqual(old.EndDate, updated.EndDate) {
		return nil
	}

	u.logger.Info("[UPDATER] found a changed course date with teacher modified feedback dates", old.ID)
	return u.feedbacks.CreateDateCheck(ctx, info.ID)
}

func datesEqual(a, b null.Time) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	return a.Time.Equal(b.Time)
}

func realisationOrganisationLinks(r FeedRealisation) []course.CourseRealisationOrganisation {
	orgs := make([]FeedOrganisation, len(r.Organisations))
	copy(orgs, r.Organisations)
	sort.SliceStable(orgs, func(i, j int) bool { return orgs[i].Share > orgs[j].Share })

	links := make([]course.CourseRealisationOrganisation, 0, len(orgs))
	for i, org := range orgs {
		if !org.OrganisationID.Valid {
			continue
		}
		typ := course.OrgTypeDirect
		if i == 0 {
			typ = course.OrgTypePrimary
		}
		links = append(links, course.CourseRealisationOrganisation{
			CourseRealisationID: r.ID,
			OrganisationID:      org.OrganisationID.String,
			Type:                typ,
		})
	}
	return links
}
