package core

import (
	"net/http"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is returned for any client error (HTTP 400).
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// BadRequest is a shorthand for a ValidationError carrying only a message.
func BadRequest(msg string) error {
	return NewValidationError(errors.New(msg))
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// StatusError is a client error with a specific HTTP status (403, 404, ...).
// Its message is safe to send back to clients.
type StatusError struct {
	Status  int
	Message string
}

func (err StatusError) Error() string { return err.Message }

func NotFound(msg string) error {
	return &StatusError{Status: http.StatusNotFound, Message: msg}
}

func Forbidden(msg string) error {
	return &StatusError{Status: http.StatusForbidden, Message: msg}
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
