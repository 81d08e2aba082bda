package updater

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// deleteCancelledCourses removes realisations cancelled upstream, but only
// those that never received any feedback. Deletion follows the foreign-key
// dependency order: user targets, surveys, targets, organisation links,
// realisation. Realisations with feedback are retained regardless of the
// upstream state.
func (u *Updater) deleteCancelledCourses(ctx context.Context, cancelledIDs []string) error {
	realisationIDs, err := u.feedbacks.ZeroFeedbackRealisationIDs(ctx, cancelledIDs)
	if err != nil {
		return errors.Wrap(err, "finding zero-feedback realisations")
	}
	if len(realisationIDs) == 0 {
		return nil
	}

	targetIDs, err := u.feedbacks.TargetIDsByRealisation(ctx, realisationIDs)
	if err != nil {
		return errors.Wrap(err, "listing feedback targets of cancelled realisations")
	}

	count, err := u.feedbacks.DeleteUserTargets(ctx, targetIDs)
	if err != nil {
		return errors.Wrap(err, "deleting user feedback targets")
	}
	u.logger.Info(fmt.Sprintf("[UPDATER] destroyed %d user feedback targets", count))

	count, err = u.feedbacks.DeleteSurveys(ctx, targetIDs)
	if err != nil {
		return errors.Wrap(err, "deleting surveys")
	}
	u.logger.Info(fmt.Sprintf("[UPDATER] destroyed %d surveys", count))

	count, err = u.feedbacks.DeleteTargets(ctx, targetIDs)
	if err != nil {
		return errors.Wrap(err, "deleting feedback targets")
	}
	u.logger.Info(fmt.Sprintf("[UPDATER] destroyed %d feedback targets", count))

	count, err = u.courses.DeleteCourseRealisationOrganisations(ctx, realisationIDs)
	if err != nil {
		return errors.Wrap(err, "deleting course realisation organisations")
	}
	u.logger.Info(fmt.Sprintf("[UPDATER] destroyed %d course realisation organisations", count))

	count, err = u.courses.DeleteCourseRealisations(ctx, realisationIDs)
	if err != nil {
		return errors.Wrap(err, "deleting course realisations")
	}
	u.logger.Info(fmt.Sprintf("[UPDATER] destroyed %d course realisations", count))

	return nil
}
