package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opiskelu/palaute/core/summary"
	"github.com/opiskelu/palaute/core/user"
)

func readAccess() []summary.OrganisationAccess {
	return []summary.OrganisationAccess{
		{Organisation: org, Access: summary.AccessFlags{Read: true}},
	}
}

func Test_summaryApi_errors(t *testing.T) {
	orgToken := getToken(t, user.User{ID: "u1", Username: "u1"}, false, readAccess())
	noAccessToken := getToken(t, user.User{ID: "rando", Username: "rando"}, false, nil)
	adminToken := getToken(t, user.User{ID: "boss", Username: "boss"}, true, nil)

	tests := []httpTest{
		{
			name:     "access: no token",
			method:   http.MethodGet,
			path:     "/v1/course-summaries/access",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "organisations: no access",
			method:   http.MethodGet,
			path:     "/v1/course-summaries/organisations",
			token:    noAccessToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "Forbidden"}),
		},
		{
			name:     "organisations: invalid start date",
			method:   http.MethodGet,
			path:     "/v1/course-summaries/organisations?startDate=lol",
			token:    orgToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"startDate": "must be a valid date (YYYY-MM-DD)"}),
		},
		{
			name:     "organisations: inverted date range",
			method:   http.MethodGet,
			path:     "/v1/course-summaries/organisations?startDate=2024-01-01&endDate=2023-01-01",
			token:    orgToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"endDate": "must not be before startDate"}),
		},
		{
			name:     "organisations: code outside access",
			method:   http.MethodGet,
			path:     "/v1/course-summaries/organisations/H99",
			token:    orgToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "Forbidden"}),
		},
		{
			name:     "course units: unknown code",
			method:   http.MethodGet,
			path:     "/v1/course-summaries/course-units/NOPE",
			token:    adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "Course unit is not found"}),
		},
		{
			name:     "course units: no access",
			method:   http.MethodGet,
			path:     "/v1/course-summaries/course-units/TKT21018",
			token:    noAccessToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "Forbidden"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_summaryApi_accessInfo(t *testing.T) {
	t.Run("organisation access", func(t *testing.T) {
		token := getToken(t, user.User{ID: "u1"}, false, readAccess())
		req, rec := newAuthRequest(http.MethodGet, "/v1/course-summaries/access", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var info summary.AccessInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.True(t, info.Accessible)
		assert.False(t, info.AdminAccess)
		require.NotNil(t, info.DefaultDateRange)
		assert.True(t, info.DefaultDateRange.EndDate.Equal(info.DefaultDateRange.StartDate.AddDate(1, 0, 0)))
	})

	t.Run("no access", func(t *testing.T) {
		token := getToken(t, user.User{ID: "rando"}, false, nil)
		req, rec := newAuthRequest(http.MethodGet, "/v1/course-summaries/access", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var info summary.AccessInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.False(t, info.Accessible)
		assert.Nil(t, info.DefaultDateRange)
	})
}

func Test_summaryApi_organisationSummaries(t *testing.T) {
	t.Run("organisation access", func(t *testing.T) {
		token := getToken(t, user.User{ID: "u1"}, false, readAccess())
		req, rec := newAuthRequest(http.MethodGet, "/v1/course-summaries/organisations", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var res summary.OrganisationSummariesResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

		// university questions first, then the programme's
		ids := make([]int, 0, len(res.Questions))
		for _, q := range res.Questions {
			ids = append(ids, q.ID)
		}
		assert.Equal(t, []int{1, 2, 3}, ids)

		require.Len(t, res.Organisations, 1)
		o := res.Organisations[0]
		assert.Equal(t, "H50", o.Code)
		assert.Equal(t, summary.AccessFlags{Read: true}, o.Access)
		assert.Equal(t, 2, o.FeedbackCount)
		assert.Equal(t, 4, o.StudentCount)
		assert.Equal(t, float64(50), o.FeedbackPercentage)
		require.Len(t, o.CourseUnits, 1)
		assert.Equal(t, "TKT21018", o.CourseUnits[0].CourseCode)
	})

	t.Run("teacher access", func(t *testing.T) {
		token := getToken(t, user.User{ID: "teacher1"}, false, nil)
		req, rec := newAuthRequest(http.MethodGet, "/v1/course-summaries/organisations", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var res summary.OrganisationSummariesResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

		// no programme questions without organisation access
		ids := make([]int, 0, len(res.Questions))
		for _, q := range res.Questions {
			ids = append(ids, q.ID)
		}
		assert.Equal(t, []int{1, 2}, ids)

		require.Len(t, res.Organisations, 1)
		o := res.Organisations[0]
		assert.Equal(t, "H50", o.Code)
		assert.Equal(t, summary.AccessFlags{}, o.Access)
		require.Len(t, o.CourseUnits, 1)
	})

	t.Run("scoped to one organisation", func(t *testing.T) {
		token := getToken(t, user.User{ID: "u1"}, false, readAccess())
		req, rec := newAuthRequest(http.MethodGet, "/v1/course-summaries/organisations/H50", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var res summary.OrganisationSummariesResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Len(t, res.Organisations, 1)
		assert.Equal(t, "H50", res.Organisations[0].Code)
	})
}

func Test_summaryApi_courseUnitSummaries(t *testing.T) {
	token := getToken(t, user.User{ID: "u1"}, false, readAccess())
	req, rec := newAuthRequest(http.MethodGet, "/v1/course-summaries/course-units/TKT21018", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res summary.CourseUnitSummariesResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	assert.Equal(t, "cu1", res.CourseUnit.ID)
	require.Len(t, res.CourseRealisations, 1)
	r := res.CourseRealisations[0]
	assert.Equal(t, courseID, r.CourseRealisation.ID)
	assert.Equal(t, target.ID, r.FeedbackTargetID)
	assert.Equal(t, 2, r.FeedbackCount)
	assert.Equal(t, 4, r.StudentCount)
	assert.Equal(t, float64(50), r.FeedbackPercentage)
}
