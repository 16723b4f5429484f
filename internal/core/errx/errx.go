package errx

import (
	"errors"
	"fmt"
)

// Kind labels a failure with the part of the recommendation flow it came
// from. Kinds are stable identifiers surfaced to callers; messages are not.
type Kind string

const (
	// KindAnalysis marks unusable intent classification or slot extraction.
	KindAnalysis Kind = "analysis_failure"
	// KindSearchUnavailable marks a product search backend that exhausted retries.
	KindSearchUnavailable Kind = "search_unavailable"
	// KindGeneration marks an LLM backend that exhausted retries or returned
	// unusable output while producing a rationale.
	KindGeneration Kind = "generation_failure"
	// KindAggregation marks malformed ranked results. This is a logic defect,
	// fatal for the turn.
	KindAggregation Kind = "aggregation_invariant"
	// KindSessionStore marks session persistence failures.
	KindSessionStore Kind = "session_store_failure"
	// KindCache marks cache failures. These must degrade to direct
	// computation and never reach the caller as a turn failure.
	KindCache Kind = "cache_failure"
	// KindTimeout marks a turn that exceeded its deadline.
	KindTimeout Kind = "turn_timeout"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
)

// Error wraps an underlying error with a Kind and a safe message.
// Permanent errors must not be retried.
type Error struct {
	Err       error
	Kind      Kind
	Message   string
	Permanent bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the underlying error or the Error itself.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	return errors.Is(e.Err, target)
}

// New creates a retryable Error of the given kind.
func New(kind Kind, err error, message string) *Error {
	return &Error{Err: err, Kind: kind, Message: message}
}

// Perm creates a permanent Error of the given kind. Retry loops fail fast on it.
func Perm(kind Kind, err error, message string) *Error {
	return &Error{Err: err, Kind: kind, Message: message, Permanent: true}
}

// KindOf returns the Kind of err, or the empty Kind for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Permanent
	}
	return false
}
