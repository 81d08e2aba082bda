package course

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
)

func TestIsOpenUniversity(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{code: "AYTKT21018", want: true},
		{code: "AY", want: true},
		{code: "TKT21018", want: false},
		{code: "A", want: false},
		{code: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOpenUniversity(tt.code))
		})
	}
}

func TestHasEnded(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cr   CourseRealisation
		want bool
	}{
		{name: "no end date", cr: CourseRealisation{}, want: false},
		{name: "ends in future", cr: CourseRealisation{EndDate: null.TimeFrom(now.AddDate(0, 0, 1))}, want: false},
		{name: "ends exactly now", cr: CourseRealisation{EndDate: null.TimeFrom(now)}, want: false},
		{name: "ended", cr: CourseRealisation{EndDate: null.TimeFrom(now.AddDate(0, 0, -1))}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasEnded(tt.cr, now))
		})
	}
}

func TestFeedbackEnabled(t *testing.T) {
	orgs := []Organisation{
		{ID: "org1", DisabledCourseCodes: []string{"TKT21018"}},
		{ID: "org2"},
	}

	assert.False(t, FeedbackEnabled("TKT21018", orgs))
	assert.True(t, FeedbackEnabled("TKT20009", orgs))
	assert.True(t, FeedbackEnabled("TKT21018", nil))
}

func TestDatePeriod_ValueScan(t *testing.T) {
	p := DatePeriod{
		StartDate: null.TimeFrom(time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC)),
	}

	val, err := p.Value()
	require.NoError(t, err)

	var scanned DatePeriod
	require.NoError(t, scanned.Scan(val))
	assert.True(t, scanned.StartDate.Valid)
	assert.True(t, p.StartDate.Time.Equal(scanned.StartDate.Time))
	assert.False(t, scanned.EndDate.Valid)

	require.NoError(t, scanned.Scan(nil))
	assert.Equal(t, DatePeriod{}, scanned)

	assert.Error(t, scanned.Scan("not bytes"))
}
