// Package apperrors defines the typed errors services return and how they map to HTTP statuses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindUnauthenticated Kind = "unauthenticated"
	KindAuthorization   Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUnexpected      Kind = "internal_error"
)

// Error is the structured error passed from services to handlers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or out-of-range input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated reports missing or wrong credentials.
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// Forbidden reports an actor lacking the role required for an operation.
func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound reports that the named resource does not resolve.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// Conflict reports a uniqueness violation that could not be resolved.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Unexpected wraps an infrastructure failure.
func Unexpected(err error, message string) *Error {
	return &Error{Kind: KindUnexpected, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindUnexpected for untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// StatusCode maps err to an HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to API clients.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindUnexpected {
		return appErr.Message
	}
	return "An unexpected error occurred"
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsForbidden(err error) bool  { return KindOf(err) == KindAuthorization }
