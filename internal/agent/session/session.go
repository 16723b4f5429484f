// Package session holds short-lived conversational state keyed by session
// id, with an in-memory store for single-process deployments and a
// Redis-backed store for anything that must survive a restart window.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/shoppick/server/internal/agent/model"
)

// ErrSessionNotFound is returned when appending to an unknown or expired id.
var ErrSessionNotFound = errors.New("session not found")

// Store is the session persistence contract. Sessions are created on first
// reference, mutated only by appending turns, and evicted after an idle TTL
// or explicit deletion. Appends for the same session id are serialized;
// different ids are independent.
type Store interface {
	// GetOrCreate loads the session, creating a fresh one when id is empty
	// or unknown (including expired ids).
	GetOrCreate(ctx context.Context, id string) (*model.Session, error)

	// AppendTurn appends one turn to the session's history and touches its
	// activity timestamp. Clarification turns bump the clarify counter.
	AppendTurn(ctx context.Context, id string, turn model.Turn) error

	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// EvictExpired removes idle-expired sessions and returns the count.
	// Best-effort; stores with native TTLs may always return zero.
	EvictExpired(ctx context.Context) (int, error)

	// ActiveCount returns the number of live sessions, for health probes.
	ActiveCount(ctx context.Context) (int, error)
}

// NewID mints an opaque session id.
func NewID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
