// Package apperr holds the error taxonomy shared by every controller. Each
// error knows the HTTP status it maps to and the i18n key of the alert a
// client shows for it.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Coded is implemented by every error that carries its own status and
// alert message key.
type Coded interface {
	error
	HTTPStatus() int
	MessageKey() string
}

// Error is a plain coded sentinel.
type Error struct {
	status int
	key    string
	msg    string
}

func (e *Error) Error() string      { return e.msg }
func (e *Error) HTTPStatus() int    { return e.status }
func (e *Error) MessageKey() string { return e.key }

var (
	ErrNotFound     = &Error{status: http.StatusNotFound, key: "alert.not_found", msg: "not found"}
	ErrForbidden    = &Error{status: http.StatusForbidden, key: "alert.forbidden", msg: "forbidden"}
	ErrUnauthorized = &Error{status: http.StatusUnauthorized, key: "alert.unauthorized", msg: "authentication required"}
	ErrBusy         = &Error{status: http.StatusServiceUnavailable, key: "alert.busy", msg: "resource busy, try again"}
)

// New builds a coded sentinel for package-level errors outside apperr.
func New(status int, key, msg string) *Error {
	return &Error{status: status, key: key, msg: msg}
}

// FieldError is one failed form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError blocks a form submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) HTTPStatus() int    { return http.StatusBadRequest }
func (e *ValidationError) MessageKey() string { return "alert.validation" }

// Invalid is a shortcut for a single-field ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// ExternalFailure wraps an error returned by a backing service (database,
// Stripe, Kafka, Redis).
type ExternalFailure struct {
	Service string
	Err     error
}

func (e *ExternalFailure) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Service, e.Err)
}

func (e *ExternalFailure) Unwrap() error      { return e.Err }
func (e *ExternalFailure) HTTPStatus() int    { return http.StatusBadGateway }
func (e *ExternalFailure) MessageKey() string { return "alert.external_failure" }

// External wraps err unless it is nil or already coded.
func External(service string, err error) error {
	if err == nil {
		return nil
	}
	var coded Coded
	if errors.As(err, &coded) {
		return err
	}
	return &ExternalFailure{Service: service, Err: err}
}

// UploadFailure is returned when an asset cannot be accepted or stored.
type UploadFailure struct {
	Path   string
	Reason string
	Err    error
}

func (e *UploadFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload %s failed: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("upload %s failed: %s", e.Path, e.Reason)
}

func (e *UploadFailure) Unwrap() error { return e.Err }

// Rejected uploads (bad type, too large) are client errors; storage errors are not.
func (e *UploadFailure) HTTPStatus() int {
	if e.Err != nil {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

func (e *UploadFailure) MessageKey() string { return "alert.upload_failed" }

// Status returns the HTTP status for err, 500 for uncoded errors.
func Status(err error) int {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// MessageKey returns the alert key for err.
func MessageKey(err error) string {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.MessageKey()
	}
	return "alert.unexpected"
}
