package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/opiskelu/palaute/core/summary"
)

const dateLayout = "2006-01-02"

type summaryApi struct {
	svc      *summary.Service
	validate *validator.Validate
}

func registerSummaryAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *summary.Service, validate *validator.Validate) {
	api := summaryApi{
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/course-summaries", jwt)
	sg.GET("/access", api.accessInfo)
	sg.GET("/organisations", api.organisationSummaries)
	sg.GET("/organisations/:code", api.organisationSummaries)
	sg.GET("/course-units/:code", api.courseUnitSummaries)
}

// SummaryQueryRequest carries the optional date range of a summary query.
type SummaryQueryRequest struct {
	StartDate                 string `query:"startDate" json:"startDate" validate:"omitempty,date_"`
	EndDate                   string `query:"endDate" json:"endDate" validate:"omitempty,date_"`
	IncludeOpenUniCourseUnits bool   `query:"includeOpenUniCourseUnits" json:"includeOpenUniCourseUnits"`
}

func (r *SummaryQueryRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r *SummaryQueryRequest) dates() (start, end time.Time) {
	if r.StartDate != "" {
		start, _ = time.Parse(dateLayout, r.StartDate)
	}
	if r.EndDate != "" {
		end, _ = time.Parse(dateLayout, r.EndDate)
	}
	return start, end
}

// Handlers

func (api *summaryApi) accessInfo(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	info, err := api.svc.AccessInfo(ctx.Request().Context(), claims.Subject, claims.OrganisationAccess)
	if err != nil {
		return errors.Wrap(err, "getting summary access info")
	}
	return ctx.JSON(http.StatusOK, info)
}

func (api *summaryApi) organisationSummaries(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data SummaryQueryRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SummaryQueryRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	startDate, endDate := data.dates()

	res, err := api.svc.OrganisationSummaries(ctx.Request().Context(), summary.OrganisationSummariesRequest{
		UserID:                    claims.Subject,
		OrganisationAccess:        claims.OrganisationAccess,
		Code:                      ctx.Param("code"),
		StartDate:                 startDate,
		EndDate:                   endDate,
		IncludeOpenUniCourseUnits: data.IncludeOpenUniCourseUnits,
	})
	if err != nil {
		return errors.Wrap(err, "getting organisation summaries")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *summaryApi) courseUnitSummaries(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	res, err := api.svc.CourseUnitSummaries(ctx.Request().Context(), summary.CourseUnitSummariesRequest{
		UserID:             claims.Subject,
		IsAdmin:            claims.IsAdmin,
		OrganisationAccess: claims.OrganisationAccess,
		CourseCode:         ctx.Param("code"),
	})
	if err != nil {
		return errors.Wrap(err, "getting course unit summaries")
	}
	return ctx.JSON(http.StatusOK, res)
}
