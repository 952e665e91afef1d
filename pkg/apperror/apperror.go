package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error so handlers and callers can branch on
// the failure class instead of matching message strings.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuthorization Kind = "AUTHORIZATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"

	// Upstream failures (AI gateway, e-mail, messaging). RateLimited and
	// QuotaExceeded are distinguished because RateLimited may be retried later
	// while QuotaExceeded must never be retried automatically.
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindQuotaExceeded       Kind = "QUOTA_EXCEEDED"

	// KindParse marks an upstream reply that is not the expected structured
	// shape. Callers fall back to a conservative result, never crash.
	KindParse Kind = "PARSE"

	// KindInternal is the catch-all for failures the caller cannot act on.
	KindInternal Kind = "INTERNAL"
)

// Error is a classified application error. Wrapped causes stay reachable
// through errors.Unwrap / errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of err, or "" when err is not a classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether a caller may retry the failed operation later.
// Quota exhaustion is explicitly non-retryable.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindUpstreamUnavailable:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error to the status code the API should respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindParse:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamUnavailable, KindQuotaExceeded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
