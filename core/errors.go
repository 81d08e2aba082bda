package core

import (
	"net/http"

	"github.com/pkg/errors"
)

// ApplicationError is a request-facing error carrying an HTTP status code.
// Anything else that reaches the error handler is treated as a server fault.
type ApplicationError struct {
	Code    int
	Message string
}

func NewApplicationError(code int, msg string) error {
	return &ApplicationError{Code: code, Message: msg}
}

func NewForbiddenError() error {
	return &ApplicationError{Code: http.StatusForbidden, Message: "Forbidden"}
}

func NewNotFoundError(msg string) error {
	return &ApplicationError{Code: http.StatusNotFound, Message: msg}
}

func (err ApplicationError) Error() string {
	return err.Message
}

// IsApplicationError unwraps err and returns the ApplicationError inside, if any.
func IsApplicationError(err error) (*ApplicationError, bool) {
	appErr, ok := errors.Cause(err).(*ApplicationError)
	return appErr, ok
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
