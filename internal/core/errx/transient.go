package errx

import (
	"context"
	"errors"
	"strings"
)

// transientPatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching is used because the LLM and shopping provider SDKs
// do not expose typed errors for transient failures. Typed *Error values
// are classified by their Permanent flag instead.
var transientPatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// Transient reports whether err is worth retrying. Context cancellation and
// permanent typed errors are never transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return !e.Permanent
	}
	return containsAny(err.Error(), transientPatterns)
}

func containsAny(s string, groups [][]string) bool {
	lower := strings.ToLower(s)
	for _, group := range groups {
		for _, sub := range group {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}
