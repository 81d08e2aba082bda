package testutil

import (
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/opiskelu/palaute/core"
)

// NewConfig returns a configuration suitable for tests.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:         "Palaute",
		Env:             "test",
		Debug:           true,
		TestMode:        true,
		WorkDir:         core.Getwd(),
		SecretKey:       "poq5-wer!",
		FrontendBaseURL: "https://palaute.test",
		DefaultFromName: "Course Feedback",
		DefaultFromAddr: "noreply@palaute.test",
		TimeZone:        "Europe/Helsinki",
		Server: core.ServerConfig{
			JWTExpirationDelta: 10 * time.Minute,
		},
		Updater: core.UpdaterConfig{
			BatchSize:             1000,
			OldestCourseStartDate: time.Date(2021, time.August, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

// Logger is a no-op core.Logger for tests.
type Logger struct{}

var _ core.Logger = (*Logger)(nil)

func (Logger) Enable(bool)                  {}
func (Logger) Debug(string, ...interface{}) {}
func (Logger) Info(string, ...interface{})  {}
func (Logger) Warn(string, ...interface{})  {}
func (Logger) Error(string, ...interface{}) {}
func (Logger) Fatal(string, ...interface{}) {}

// Diff renders a unified diff of two payloads for test failure messages.
func Diff(want, got string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}
