package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_home(t *testing.T) {
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Palaute API!", rec.Body.String())
}
