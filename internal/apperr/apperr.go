// Package apperr defines the error kinds every core operation returns and
// how they map onto HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindBusiness
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindBusiness:
		return "business"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code a handler responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindBusiness:
		return http.StatusBadRequest
	case KindAuth, KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is set on rate-limited errors, in seconds.
	RetryAfter int
	// Current carries the server copy of a resource on version conflicts.
	Current any
	// Concealed forbidden errors are presented to clients as not found.
	Concealed bool

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func Auth(format string, args ...any) *Error       { return newf(KindAuth, format, args...) }
func Forbidden(format string, args ...any) *Error  { return newf(KindForbidden, format, args...) }
func NotFound(format string, args ...any) *Error   { return newf(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error   { return newf(KindConflict, format, args...) }
func Business(format string, args ...any) *Error   { return newf(KindBusiness, format, args...) }

// Unauthenticated is returned when no live session backs a request.
func Unauthenticated(format string, args ...any) *Error {
	return newf(KindUnauthenticated, format, args...)
}

// Internal wraps an infrastructure failure. Clients only see a generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// Concealed is a forbidden error that must look exactly like a not-found one.
func Concealed(notFoundMessage string) *Error {
	return &Error{Kind: KindForbidden, Message: notFoundMessage, Concealed: true}
}

// RateLimited carries the number of seconds after which the client may retry.
func RateLimited(message string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// ConflictWithCurrent is a version conflict carrying the current server copy.
func ConflictWithCurrent(message string, current any) *Error {
	return &Error{Kind: KindConflict, Message: message, Current: current}
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the classified error, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
