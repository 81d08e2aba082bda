// Package notifsvc builds and dispatches the scheduled feedback emails:
// "feedback is open" notifications for students, "feedback is about to open"
// reminders for teachers and "no counter feedback yet" reminders for teachers.
package notifsvc

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
)

const dateFormat = "2.1.2006"

var (
	feedbackOpenSubject = core.LocalizedString{
		Fi: "Kurssipalaute on avautunut",
		Sv: "Kursresponsen har öppnats",
		En: "Course feedback has opened",
	}
	openingReminderSubject = core.LocalizedString{
		Fi: "Kurssipalaute on avautumassa",
		Sv: "Kursresponsen öppnas snart",
		En: "Course feedback is about to open",
	}
	responseReminderSubject = core.LocalizedString{
		Fi: "Muistathan antaa vastapalautetta",
		Sv: "Kom ihåg att ge motrespons",
		En: "Please give counter feedback",
	}
)

type (
	// CourseInfo is the per-course payload rendered into notification emails.
	CourseInfo struct {
		ID       string
		Name     string
		URL      string
		OpensAt  string
		ClosesAt string
	}

	// Notification is one email to one recipient about one or more courses.
	Notification struct {
		Email    string
		Language string
		UserID   string
		Username string
		Courses  []CourseInfo
	}

	Service struct {
		repo    feedback.Repository
		email   core.EmailService
		logger  core.Logger
		conf    *core.Config
		nowFunc func() time.Time
	}
)

func NewService(repo feedback.Repository, email core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		email:   email,
		logger:  logger,
		conf:    conf,
		nowFunc: time.Now,
	}
}

// RunDaily dispatches all three notification kinds. Each kind fails
// independently so a broken selection does not block the others.
func (svc *Service) RunDaily(ctx context.Context) error {
	var firstErr error
	if err := svc.SendFeedbackOpenNotifications(ctx); err != nil {
		svc.logger.Error("sending feedback open notifications", err)
		firstErr = err
	}
	if err := svc.SendFeedbackOpeningReminders(ctx); err != nil {
		svc.logger.Error("sending feedback opening reminders", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := svc.SendFeedbackResponseReminders(ctx); err != nil {
		svc.logger.Error("sending feedback response reminders", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendFeedbackOpenNotifications emails students whose feedback just opened.
// Each student gets a single email listing all of their newly opened courses.
func (svc *Service) SendFeedbackOpenNotifications(ctx context.Context) error {
	now := svc.nowFunc()
	targets, err := svc.repo.OpenTargetsForStudents(ctx, now, svc.conf.Updater.OldestCourseStartDate)
	if err != nil {
		return errors.Wrap(err, "selecting open feedback targets")
	}

	notifications := make(map[string]*Notification)
	refs := make([]feedback.UserTargetRef, 0)
	for _, et := range targets {
		if !course.FeedbackEnabled(et.CourseCode, []course.Organisation{{DisabledCourseCodes: et.DisabledCourseCodes}}) {
			continue
		}
		for _, r := range et.Recipients {
			if r.FeedbackOpenEmailSent || r.Email == "" {
				continue
			}
			svc.appendCourse(notifications, r, et)
			refs = append(refs, feedback.UserTargetRef{UserID: r.UserID, FeedbackTargetID: et.Target.ID})
		}
	}

	svc.dispatch(notifications, feedbackOpenSubject, "feedback_open")
	if len(refs) > 0 {
		if err = svc.repo.MarkFeedbackOpenEmailSent(ctx, refs); err != nil {
			return errors.Wrap(err, "marking feedback open emails sent")
		}
	}
	svc.logger.Info(fmt.Sprintf("[NOTIFICATIONS] sent %d feedback open notifications", len(notifications)))
	return nil
}

// SendFeedbackOpeningReminders emails teachers a week before their course's
// feedback opens.
func (svc *Service) SendFeedbackOpeningReminders(ctx context.Context) error {
	now := svc.nowFunc()
	targets, err := svc.repo.TargetsAboutToOpenForTeachers(ctx, now, svc.conf.Updater.OldestCourseStartDate)
	if err != nil {
		return errors.Wrap(err, "selecting feedback targets about to open")
	}

	notifications := make(map[string]*Notification)
	targetIDs := make([]string, 0, len(targets))
	for _, et := range targets {
		if !course.FeedbackEnabled(et.CourseCode, []course.Organisation{{DisabledCourseCodes: et.DisabledCourseCodes}}) {
			continue
		}
		notified := false
		for _, r := range et.Recipients {
			if r.Email == "" {
				continue
			}
			svc.appendCourse(notifications, r, et)
			notified = true
		}
		if notified {
			targetIDs = append(targetIDs, et.Target.ID)
		}
	}

	svc.dispatch(notifications, openingReminderSubject, "feedback_opening_reminder")
	if err = svc.repo.MarkOpeningReminderEmailSent(ctx, targetIDs); err != nil {
		return errors.Wrap(err, "marking opening reminder emails sent")
	}
	svc.logger.Info(fmt.Sprintf("[NOTIFICATIONS] sent %d feedback opening reminders", len(notifications)))
	return nil
}

// SendFeedbackResponseReminders emails teachers whose feedback closed without
// a counter feedback response.
func (svc *Service) SendFeedbackResponseReminders(ctx context.Context) error {
	now := svc.nowFunc()
	targets, err := svc.repo.TargetsWithoutResponseForTeachers(ctx, now, svc.conf.Updater.OldestCourseStartDate)
	if err != nil {
		return errors.Wrap(err, "selecting feedback targets without response")
	}

	notifications := make(map[string]*Notification)
	targetIDs := make([]string, 0, len(targets))
	for _, et := range targets {
		if !course.FeedbackEnabled(et.CourseCode, []course.Organisation{{DisabledCourseCodes: et.DisabledCourseCodes}}) {
			continue
		}
		notified := false
		for _, r := range et.Recipients {
			if r.Email == "" {
				continue
			}
			svc.appendCourse(notifications, r, et)
			notified = true
		}
		if notified {
			targetIDs = append(targetIDs, et.Target.ID)
		}
	}

	svc.dispatch(notifications, responseReminderSubject, "feedback_response_reminder")
	if err = svc.repo.MarkResponseReminderEmailSent(ctx, targetIDs); err != nil {
		return errors.Wrap(err, "marking response reminder emails sent")
	}
	svc.logger.Info(fmt.Sprintf("[NOTIFICATIONS] sent %d feedback response reminders", len(notifications)))
	return nil
}

func (svc *Service) appendCourse(notifications map[string]*Notification, r feedback.Recipient, et feedback.EmailTarget) {
	email := core.CleanString(r.Email, true)
	n, ok := notifications[email]
	if !ok {
		n = &Notification{
			Email:    email,
			Language: r.Language,
			UserID:   r.UserID,
			Username: r.Username,
		}
		notifications[email] = n
	}

	name := et.CourseName.In(r.Language)
	if name == "" {
		name = et.CourseCode
	}
	info := CourseInfo{
		ID:   et.Target.ID,
		Name: name,
		URL:  fmt.Sprintf("%s/targets/%s/feedback", svc.conf.FrontendBaseURL, et.Target.ID),
	}
	if !et.Target.OpensAt.IsZero() {
		info.OpensAt = et.Target.OpensAt.Format(dateFormat)
	}
	if !et.Target.ClosesAt.IsZero() {
		info.ClosesAt = et.Target.ClosesAt.Format(dateFormat)
	}
	n.Courses = append(n.Courses, info)
}

func (svc *Service) dispatch(notifications map[string]*Notification, subject core.LocalizedString, templateName string) {
	if len(notifications) == 0 {
		return
	}

	// deterministic send order
	emails := make([]string, 0, len(notifications))
	for email := range notifications {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	messages := make([]*core.EmailMessage, 0, len(notifications))
	for _, email := range emails {
		n := notifications[email]
		sort.Slice(n.Courses, func(i, j int) bool { return n.Courses[i].Name < n.Courses[j].Name })
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: n.Username, Address: n.Email}},
			Subject:      subject.In(n.Language),
			TemplateName: templateName,
			TemplateData: n,
		})
	}
	svc.email.SendMessages(messages...)
}
