// Package lucyerr implements the error taxonomy of the request control
// plane (spec §7). Every error that crosses a component boundary is
// classified into a Kind so callers can decide whether to retry, degrade
// gracefully, or surface a user-visible message — never leak internals
// verbatim to users.
package lucyerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and user-messaging policy.
type Kind string

const (
	KindRetryable     Kind = "retryable"
	KindAuth          Kind = "auth"
	KindInvalidParams Kind = "invalid_params"
	KindUnknownTool   Kind = "unknown_tool"
	KindCircuitOpen   Kind = "circuit_open"
	KindRateLimited   Kind = "rate_limited"
	KindTimeout       Kind = "timeout"
	KindFatal         Kind = "fatal"
	KindLimitExceeded Kind = "limit_exceeded"
)

// Retryable reports whether errors of this kind may succeed if retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindRetryable, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is a typed, wrapped error carrying a classification Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether this error's kind may succeed if retried.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// New builds a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindFatal when err is not
// a classified *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// RetryableStatuses are the HTTP statuses retried with exponential backoff
// per spec §7's "retryable" policy for LLM turns.
var RetryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}
