package updater

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/feedback"
	"github.com/opiskelu/palaute/core/user"
)

var commonFeedbackName = core.LocalizedString{
	Fi: "Yleinen palaute kurssista",
	En: "General feedback about the course",
	Sv: "Allmän respons om kursen",
}

// feedbackWindow derives the default feedback window from the course end
// date: opens on the end date, closes 14 days later at 23:59 local time.
func feedbackWindow(courseEndDate time.Time, loc *time.Location) (opensAt, closesAt time.Time) {
	opensAt = time.Date(courseEndDate.Year(), courseEndDate.Month(), courseEndDate.Day(), 0, 0, 0, 0, loc)
	closesAt = opensAt.AddDate(0, 0, 14).Add(23*time.Hour + 59*time.Minute)
	return opensAt, closesAt
}

// combineStudyGroupName renders "{groupSetName}: {subGroupName}" per
// language; a language missing on either side yields nothing for it.
func combineStudyGroupName(first, second core.LocalizedString) core.LocalizedString {
	var name core.LocalizedString
	if first.Fi != "" && second.Fi != "" {
		name.Fi = first.Fi + ": " + second.Fi
	}
	if first.En != "" && second.En != "" {
		name.En = first.En + ": " + second.En
	}
	if first.Sv != "" && second.Sv != "" {
		name.Sv = first.Sv + ": " + second.Sv
	}
	return name
}

// createFeedbackTargets derives feedback targets from a batch of reconciled
// realisations: one visible target per realisation plus one hidden target per
// study subgroup, then grants the responsible teachers access.
func (u *Updater) createFeedbackTargets(ctx context.Context, realisations []FeedRealisation) error {
	personIDsByRealisation := make(map[string][]string, len(realisations))
	payloads := make([]feedback.Target, 0, len(realisations))

	for _, r := range realisations {
		personIDs := make([]string, 0, len(r.ResponsibilityInfos))
		for _, info := range r.ResponsibilityInfos {
			if info.PersonID.Valid {
				personIDs = append(personIDs, info.PersonID.String)
			}
		}
		personIDsByRealisation[r.ID] = personIDs

		courseUnit := r.CourseUnits[0]
		opensAt, closesAt := feedbackWindow(r.ActivityPeriod.EndDate.Time, u.location)

		payloads = append(payloads, feedback.Target{
			FeedbackType:        feedback.TypeCourseRealisation,
			TypeID:              r.ID,
			CourseUnitID:        courseUnit.ID,
			CourseRealisationID: r.ID,
			Name:                commonFeedbackName,
			Hidden:              false,
			OpensAt:             opensAt,
			ClosesAt:            closesAt,
		})
		for _, groupSet := range r.StudyGroupSets {
			for _, subGroup := range groupSet.StudySubGroups {
				payloads = append(payloads, feedback.Target{
					FeedbackType:        feedback.TypeStudySubGroup,
					TypeID:              subGroup.ID,
					CourseUnitID:        courseUnit.ID,
					CourseRealisationID: r.ID,
					Name:                combineStudyGroupName(groupSet.Name, subGroup.Name),
					Hidden:              true,
					OpensAt:             opensAt,
					ClosesAt:            closesAt,
				})
			}
		}
	}

	// guard against partial sync ordering: only targets of already-known
	// course units are created
	courseUnitIDs := make([]string, 0, len(payloads))
	seen := make(map[string]struct{}, len(payloads))
	for _, p := range payloads {
		if _, ok := seen[p.CourseUnitID]; !ok {
			seen[p.CourseUnitID] = struct{}{}
			courseUnitIDs = append(courseUnitIDs, p.CourseUnitID)
		}
	}
	existingIDs, err := u.courses.ExistingCourseUnitIDs(ctx, courseUnitIDs)
	if err != nil {
		return errors.Wrap(err, "checking existing course units")
	}
	existing := make(map[string]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}
	targets := payloads[:0]
	for _, p := range payloads {
		if _, ok := existing[p.CourseUnitID]; ok {
			targets = append(targets, p)
		}
	}

	// partition on teacher-edited feedback windows; the edited set keeps its
	// dates across every sync run
	editedTypeIDs, err := u.feedbacks.TypeIDsWithTeacherEditedDates(ctx)
	if err != nil {
		return errors.Wrap(err, "listing teacher-edited targets")
	}
	edited := make(map[string]struct{}, len(editedTypeIDs))
	for _, id := range editedTypeIDs {
		edited[id] = struct{}{}
	}

	editedTargets := make([]feedback.Target, 0)
	untouchedTargets := make([]feedback.Target, 0, len(targets))
	for _, t := range targets {
		if _, ok := edited[t.TypeID]; ok {
			editedTargets = append(editedTargets, t)
		} else {
			untouchedTargets = append(untouchedTargets, t)
		}
	}

	editedRows, err := u.feedbacks.UpsertTargets(ctx, editedTargets, false /* updateDates */)
	if err != nil {
		return errors.Wrap(err, "upserting teacher-edited feedback targets")
	}
	untouchedRows, err := u.feedbacks.UpsertTargets(ctx, untouchedTargets, true /* updateDates */)
	if err != nil {
		return errors.Wrap(err, "upserting feedback targets")
	}

	rows := append(editedRows, untouchedRows...)
	links := make([]feedback.UserTarget, 0, len(rows))
	linkedPersons := make(map[string]struct{})
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		for _, personID := range personIDsByRealisation[row.CourseRealisationID] {
			linkedPersons[personID] = struct{}{}
			links = append(links, feedback.UserTarget{
				UserID:           personID,
				FeedbackTargetID: row.ID,
				AccessStatus:     feedback.AccessTeacher,
			})
		}
	}

	// the feed only carries person ids; placeholder rows keep the access
	// grants referentially sound until the person sync fills them in
	stubs := make([]user.User, 0, len(linkedPersons))
	for personID := range linkedPersons {
		stubs = append(stubs, user.User{ID: personID})
	}
	if err = u.users.EnsureUsers(ctx, stubs); err != nil {
		return errors.Wrap(err, "ensuring responsible teachers exist")
	}

	if err = u.feedbacks.CreateUserTargets(ctx, links); err != nil {
		return errors.Wrap(err, "creating user feedback targets")
	}
	return nil
}
