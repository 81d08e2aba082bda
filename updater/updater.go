// Package updater synchronizes course, teacher and feedback-target data from
// the study registry feed into the local store.
package updater

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
	"github.com/opiskelu/palaute/core/user"
)

// Realisation types that produce feedback targets.
var validRealisationTypes = map[string]struct{}{
	"urn:code:course-unit-realisation-type:teaching-participation-lab":          {},
	"urn:code:course-unit-realisation-type:teaching-participation-online":       {},
	"urn:code:course-unit-realisation-type:teaching-participation-field-course": {},
	"urn:code:course-unit-realisation-type:teaching-participation-project":      {},
	"urn:code:course-unit-realisation-type:teaching-participation-lectures":     {},
	"urn:code:course-unit-realisation-type:teaching-participation-small-group":  {},
	"urn:code:course-unit-realisation-type:teaching-participation-seminar":      {},
}

const flowStateCancelled = "CANCELLED"

var (
	numericOnlyRegexp     = regexp.MustCompile(`^[0-9]+$`)
	openNumericOnlyRegexp = regexp.MustCompile(`^AY[0-9]+$`)
)

type Updater struct {
	src       Source
	courses   course.Repository
	feedbacks feedback.Repository
	users     user.Repository
	logger    core.Logger

	location         *time.Location
	batchSize        int
	protectedUserIDs []string
	nowFunc          func() time.Time
}

func New(src Source, courses course.Repository, feedbacks feedback.Repository, users user.Repository, logger core.Logger, conf *core.Config) *Updater {
	return &Updater{
		src:              src,
		courses:          courses,
		feedbacks:        feedbacks,
		users:            users,
		logger:           logger,
		location:         conf.Location(),
		batchSize:        conf.Updater.BatchSize,
		protectedUserIDs: conf.Updater.ProtectedUserIDs,
		nowFunc:          time.Now,
	}
}

// Run executes one full synchronization: non-open course units first, then
// open-university course units, then realisations and feedback targets. Open
// course matching in pass 2 needs the non-open units of pass 1 persisted, so
// this ordering is a hard invariant. A failed batch aborts the run; the next
// scheduled invocation retries the whole sync.
func (u *Updater) Run(ctx context.Context) error {
	if err := mangleFeed(ctx, u.src, u.batchSize, u.logger, u.handleCourseUnits); err != nil {
		return errors.Wrap(err, "course unit pass")
	}
	if err := mangleFeed(ctx, u.src, u.batchSize, u.logger, u.handleOpenCourseUnits); err != nil {
		return errors.Wrap(err, "open course unit pass")
	}

	// Delete all provisional teacher rights once a week (saturday-sunday night).
	// Re-running within the same window just deletes an empty set.
	if u.nowFunc().Weekday() == time.Sunday {
		u.logger.Info("[UPDATER] deleting provisional teacher rights")
		count, err := u.feedbacks.DeleteProvisionalTeacherAccess(ctx, u.protectedUserIDs)
		if err != nil {
			return errors.Wrap(err, "deleting provisional teacher rights")
		}
		u.logger.Info(fmt.Sprintf("[UPDATER] deleted %d provisional teacher rights", count))
	}

	if err := mangleFeed(ctx, u.src, u.batchSize, u.logger, u.handleCourses); err != nil {
		return errors.Wrap(err, "course realisation pass")
	}
	return nil
}

// handleCourseUnits reconciles plain course units; purely numeric codes are
// registry artifacts and skipped.
func (u *Updater) handleCourseUnits(ctx context.Context, batch []FeedRealisation) error {
	units := make([]FeedCourseUnit, 0, len(batch))
	for _, r := range batch {
		for _, cu := range r.CourseUnits {
			if !course.IsOpenUniversity(cu.Code) && !numericOnlyRegexp.MatchString(cu.Code) {
				units = append(units, cu)
			}
		}
	}
	return u.createCourseUnits(ctx, units)
}

// handleOpenCourseUnits reconciles open-university course units, skipping
// AY + digits-only artifact codes.
func (u *Updater) handleOpenCourseUnits(ctx context.Context, batch []FeedRealisation) error {
	units := make([]FeedCourseUnit, 0, len(batch))
	for _, r := range batch {
		for _, cu := range r.CourseUnits {
			if course.IsOpenUniversity(cu.Code) && !openNumericOnlyRegexp.MatchString(cu.Code) {
				units = append(units, cu)
			}
		}
	}
	return u.createCourseUnits(ctx, units)
}

// handleCourses reconciles realisations and their feedback targets, then
// sweeps upstream-cancelled realisations.
func (u *Updater) handleCourses(ctx context.Context, batch []FeedRealisation) error {
	active := make([]FeedRealisation, 0, len(batch))
	cancelledIDs := make([]string, 0)
	for _, r := range batch {
		if r.FlowState == flowStateCancelled {
			cancelledIDs = append(cancelledIDs, r.ID)
			continue
		}
		if len(r.CourseUnits) == 0 {
			continue
		}
		if _, ok := validRealisationTypes[r.CourseUnitRealisationTypeURN]; !ok {
			continue
		}
		active = append(active, r)
	}

	if err := u.createCourseRealisations(ctx, active); err != nil {
		return err
	}
	if err := u.createFeedbackTargets(ctx, active); err != nil {
		return err
	}

	if len(cancelledIDs) > 0 {
		if err := u.deleteCancelledCourses(ctx, cancelledIDs); err != nil {
			return err
		}
	}
	return nil
}
