// Package llm provides a uniform client interface over interchangeable
// chat-model backends, with bounded retry for transient provider errors.
package llm

import "context"

// Client is the capability the analyzer and agents need from an LLM
// backend: one prompt in, one completion out.
type Client interface {
	// Complete sends a system + user prompt and returns the raw completion
	// text. Transient transport errors are retried by the caller-facing
	// wrapper; permanent errors (auth, malformed request) fail fast.
	Complete(ctx context.Context, system, user string) (string, error)

	// Name identifies the backing provider/model for logs and health probes.
	Name() string
}
