package summary

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
)

type (
	OrganisationSummariesRequest struct {
		UserID                    string
		OrganisationAccess        []OrganisationAccess
		Code                      string // restrict to one organisation; empty for all
		StartDate                 time.Time
		EndDate                   time.Time
		IncludeOpenUniCourseUnits bool
	}

	OrganisationSummariesResult struct {
		Questions     []feedback.Question   `json:"questions"`
		Organisations []OrganisationSummary `json:"organisations"`
	}

	CourseUnitSummariesRequest struct {
		UserID             string
		IsAdmin            bool
		OrganisationAccess []OrganisationAccess
		CourseCode         string
	}

	CourseUnitSummariesResult struct {
		Questions          []feedback.Question        `json:"questions"`
		CourseRealisations []CourseRealisationSummary `json:"courseRealisations"`
		CourseUnit         course.CourseUnit          `json:"courseUnit"`
	}

	AccessInfo struct {
		Accessible       bool       `json:"accessible"`
		AdminAccess      bool       `json:"adminAccess"`
		DefaultDateRange *DateRange `json:"defaultDateRange"`
	}

	Service struct {
		repo       Repository
		courseRepo course.Repository
		logger     core.Logger
		// includedOrganisationsByUserID restricts the listed users to a fixed
		// subset of organisation codes; an operational override from config.
		includedOrganisationsByUserID map[string][]string
		nowFunc                       func() time.Time
	}
)

func NewService(repo Repository, courseRepo course.Repository, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:                          repo,
		courseRepo:                    courseRepo,
		logger:                        logger,
		includedOrganisationsByUserID: conf.IncludedOrganisationsByUserID,
		nowFunc:                       time.Now,
	}
}

// Percentage guards the feedback ratio against empty courses; never NaN.
func Percentage(feedbackCount, studentCount int) float64 {
	if studentCount == 0 {
		return 0
	}
	return float64(feedbackCount) / float64(studentCount) * 100
}

// DefaultDateRange is the current academic year: August 1st to the next
// August 1st, in UTC.
func DefaultDateRange(now time.Time) DateRange {
	year := now.Year()
	if now.Month() < time.August {
		year--
	}
	start := time.Date(year, time.August, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{StartDate: start, EndDate: start.AddDate(1, 0, 0)}
}

func (svc *Service) filterOrganisationAccess(userID string, access []OrganisationAccess) []OrganisationAccess {
	included, ok := svc.includedOrganisationsByUserID[userID]
	if !ok {
		return access
	}
	filtered := make([]OrganisationAccess, 0, len(access))
	for _, a := range access {
		for _, code := range included {
			if a.Organisation.Code == code {
				filtered = append(filtered, a)
				break
			}
		}
	}
	return filtered
}

func (svc *Service) summaryQuestions(ctx context.Context, organisationCodes []string) ([]feedback.Question, error) {
	university, err := svc.repo.UniversitySurvey(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting university survey")
	}
	programme, err := svc.repo.ProgrammeSurveys(ctx, organisationCodes)
	if err != nil {
		return nil, errors.Wrap(err, "getting programme surveys")
	}

	idLists := [][]int{university.QuestionIDs}
	for _, s := range programme {
		idLists = append(idLists, s.QuestionIDs)
	}
	ids := feedback.QuestionIDUnion(idLists...)

	questions, err := svc.repo.QuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting questions")
	}
	return questions, nil
}

// AccessInfo tells the caller whether any summaries are visible to them.
func (svc *Service) AccessInfo(ctx context.Context, userID string, orgAccess []OrganisationAccess) (AccessInfo, error) {
	accessibleIDs, err := svc.repo.AccessibleCourseRealisationIDs(ctx, userID, svc.nowFunc())
	if err != nil {
		return AccessInfo{}, errors.Wrap(err, "getting accessible course realisations")
	}

	info := AccessInfo{
		Accessible: len(orgAccess) > 0 || len(accessibleIDs) > 0,
	}
	for _, a := range orgAccess {
		if a.Access.Admin {
			info.AdminAccess = true
			break
		}
	}
	if info.Accessible {
		r := DefaultDateRange(svc.nowFunc())
		info.DefaultDateRange = &r
	}

	if len(orgAccess) == 1 {
		svc.logger.Info("Organisation access",
			map[string]interface{}{
				"organisationName": orgAccess[0].Organisation.Name.Fi,
				"organisationCode": orgAccess[0].Organisation.Code,
			})
	}
	return info, nil
}

// OrganisationSummaries aggregates feedback statistics per organisation and
// course unit over the requested date range and access scope.
func (svc *Service) OrganisationSummaries(ctx context.Context, req OrganisationSummariesRequest) (*OrganisationSummariesResult, error) {
	orgAccess := req.OrganisationAccess
	if req.Code != "" {
		scoped := make([]OrganisationAccess, 0, 1)
		for _, a := range orgAccess {
			if a.Organisation.Code == req.Code {
				scoped = append(scoped, a)
			}
		}
		orgAccess = scoped
	}

	accessibleIDs, err := svc.repo.AccessibleCourseRealisationIDs(ctx, req.UserID, svc.nowFunc())
	if err != nil {
		return nil, errors.Wrap(err, "getting accessible course realisations")
	}

	if len(orgAccess) == 0 && len(accessibleIDs) == 0 {
		return nil, core.NewForbiddenError()
	}

	orgAccess = svc.filterOrganisationAccess(req.UserID, orgAccess)

	startDate, endDate := req.StartDate, req.EndDate
	if startDate.IsZero() {
		r := DefaultDateRange(svc.nowFunc())
		startDate, endDate = r.StartDate, r.EndDate
	} else if endDate.IsZero() {
		endDate = startDate.AddDate(1, 0, 0)
	}
	if endDate.Before(startDate) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "endDate", Error: "must not be before startDate"})
	}

	codes := make([]string, 0, len(orgAccess))
	orgIDs := make([]string, 0, len(orgAccess))
	accessByOrgID := make(map[string]OrganisationAccess, len(orgAccess))
	for _, a := range orgAccess {
		codes = append(codes, a.Organisation.Code)
		orgIDs = append(orgIDs, a.Organisation.ID)
		accessByOrgID[a.Organisation.ID] = a
	}

	questions, err := svc.summaryQuestions(ctx, codes)
	if err != nil {
		return nil, err
	}

	rows, err := svc.repo.OrganisationRows(ctx, RowQuery{
		OrganisationIDs:           orgIDs,
		AccessibleRealisationIDs:  accessibleIDs,
		StartDate:                 startDate,
		EndDate:                   endDate,
		IncludeOpenUniCourseUnits: req.IncludeOpenUniCourseUnits,
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying organisation summaries")
	}

	return &OrganisationSummariesResult{
		Questions:     questions,
		Organisations: foldRows(rows, accessByOrgID),
	}, nil
}

// foldRows groups per-course-unit rows into organisation summaries, sorted by
// organisation code with course units sorted by course code.
func foldRows(rows []Row, accessByOrgID map[string]OrganisationAccess) []OrganisationSummary {
	byOrg := make(map[string]*OrganisationSummary)
	order := make([]string, 0)

	for _, row := range rows {
		org, ok := byOrg[row.OrganisationID]
		if !ok {
			org = &OrganisationSummary{
				ID:     row.OrganisationID,
				Name:   row.OrganisationName,
				Code:   row.OrganisationCode,
				Access: accessByOrgID[row.OrganisationID].Access,
			}
			byOrg[row.OrganisationID] = org
			order = append(order, row.OrganisationID)
		}
		org.FeedbackCount += row.FeedbackCount
		org.StudentCount += row.StudentCount
		org.CourseUnits = append(org.CourseUnits, CourseUnitSummary{
			CourseUnitID:       row.CourseUnitID,
			Name:               row.CourseUnitName,
			CourseCode:         row.CourseCode,
			FeedbackCount:      row.FeedbackCount,
			StudentCount:       row.StudentCount,
			FeedbackPercentage: Percentage(row.FeedbackCount, row.StudentCount),
		})
	}

	summaries := make([]OrganisationSummary, 0, len(order))
	for _, id := range order {
		org := byOrg[id]
		org.FeedbackPercentage = Percentage(org.FeedbackCount, org.StudentCount)
		sort.Slice(org.CourseUnits, func(i, j int) bool {
			return org.CourseUnits[i].CourseCode < org.CourseUnits[j].CourseCode
		})
		summaries = append(summaries, *org)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Code < summaries[j].Code })
	return summaries
}

// CourseUnitSummaries aggregates feedback statistics for every realisation of
// a course code.
func (svc *Service) CourseUnitSummaries(ctx context.Context, req CourseUnitSummariesRequest) (*CourseUnitSummariesResult, error) {
	courseUnits, err := svc.courseRepo.CourseUnitsByCourseCode(ctx, req.CourseCode)
	if err != nil {
		return nil, errors.Wrap(err, "getting course units")
	}
	if len(courseUnits) == 0 {
		return nil, core.NewNotFoundError("Course unit is not found")
	}

	if err = svc.checkCourseUnitAccess(ctx, req, courseUnits); err != nil {
		return nil, err
	}

	orgs, err := svc.courseRepo.OrganisationsByCourseUnitID(ctx, courseUnits[0].ID)
	if err != nil {
		return nil, errors.Wrap(err, "getting course unit organisations")
	}
	codes := make([]string, 0, len(orgs))
	for _, org := range orgs {
		codes = append(codes, org.Code)
	}

	questions, err := svc.summaryQuestions(ctx, codes)
	if err != nil {
		return nil, err
	}

	rows, err := svc.repo.CourseRealisationRows(ctx, req.CourseCode)
	if err != nil {
		return nil, errors.Wrap(err, "querying course realisation summaries")
	}

	realisations := make([]CourseRealisationSummary, 0, len(rows))
	for _, row := range rows {
		realisations = append(realisations, CourseRealisationSummary{
			CourseRealisation:  row.CourseRealisation,
			FeedbackTargetID:   row.FeedbackTargetID,
			FeedbackCount:      row.FeedbackCount,
			StudentCount:       row.StudentCount,
			FeedbackPercentage: Percentage(row.FeedbackCount, row.StudentCount),
		})
	}

	return &CourseUnitSummariesResult{
		Questions:          questions,
		CourseRealisations: realisations,
		CourseUnit:         courseUnits[0],
	}, nil
}

func (svc *Service) checkCourseUnitAccess(ctx context.Context, req CourseUnitSummariesRequest, courseUnits []course.CourseUnit) error {
	if req.IsAdmin {
		return nil
	}

	orgs, err := svc.courseRepo.OrganisationsByCourseUnitID(ctx, courseUnits[0].ID)
	if err != nil {
		return errors.Wrap(err, "getting course unit organisations")
	}
	for _, org := range orgs {
		for _, a := range req.OrganisationAccess {
			if a.Organisation.ID == org.ID && a.Access.Read {
				return nil
			}
		}
	}

	ids := make([]string, 0, len(courseUnits))
	for _, cu := range courseUnits {
		ids = append(ids, cu.ID)
	}
	hasAccess, err := svc.repo.HasTeacherAccessToCourseUnits(ctx, req.UserID, ids)
	if err != nil {
		return errors.Wrap(err, "checking course realisation access")
	}
	if !hasAccess {
		return core.NewForbiddenError()
	}
	return nil
}
