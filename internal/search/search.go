// Package search provides a uniform client interface over external
// product-search providers.
package search

import (
	"context"

	"github.com/shoppick/server/internal/agent/model"
)

// Sort orders supported by the shopping provider.
const (
	SortRelevance = "sim"  // relevance
	SortDate      = "date" // newest first; proxy for what is currently listed/trending
	SortPriceAsc  = "asc"
	SortPriceDesc = "dsc"
)

// Query describes one product search.
type Query struct {
	Term          string
	Display       int
	Sort          string
	MinPrice      int64
	MaxPrice      int64
	ExcludeUsed   bool
	ExcludeRental bool
}

// Client is the capability agents need from a shopping backend.
type Client interface {
	// Search returns candidates for the query. Exhausted retries surface a
	// search_unavailable error kind; auth and malformed-request errors are
	// permanent and fail fast.
	Search(ctx context.Context, q Query) ([]model.ProductCandidate, error)

	// Name identifies the provider for logs and health probes.
	Name() string
}
