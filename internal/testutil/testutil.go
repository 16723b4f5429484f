// Package testutil provides in-memory fakes for the external backends.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/search"
)

// FakeLLM returns scripted completions in order, then repeats the last one.
// An Err, when set, is returned instead.
type FakeLLM struct {
	mu      sync.Mutex
	Outputs []string
	Err     error
	calls   atomic.Int64

	// LastSystem and LastUser capture the most recent request for assertions.
	LastSystem string
	LastUser   string
}

func (f *FakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := int(f.calls.Add(1)) - 1
	f.LastSystem = system
	f.LastUser = user

	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Outputs) == 0 {
		return "", nil
	}
	if n >= len(f.Outputs) {
		n = len(f.Outputs) - 1
	}
	return f.Outputs[n], nil
}

func (f *FakeLLM) Name() string { return "fake" }

// Calls returns how many completions were requested.
func (f *FakeLLM) Calls() int { return int(f.calls.Load()) }

// FakeSearch returns canned candidates per query term. Terms without a
// scripted result fall back to Default. An Err, when set, fails every call.
type FakeSearch struct {
	mu      sync.Mutex
	Results map[string][]model.ProductCandidate
	Default []model.ProductCandidate
	Err     error

	queries []search.Query
}

func (f *FakeSearch) Search(_ context.Context, q search.Query) ([]model.ProductCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if f.Err != nil {
		return nil, f.Err
	}
	if items, ok := f.Results[q.Term]; ok {
		return items, nil
	}
	return f.Default, nil
}

func (f *FakeSearch) Name() string { return "fake" }

// Queries returns a copy of every query issued so far.
func (f *FakeSearch) Queries() []search.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]search.Query, len(f.queries))
	copy(out, f.queries)
	return out
}

// Product builds a candidate with the fields ranking cares about.
func Product(id, title string, price int64, rating float64, reviews int) model.ProductCandidate {
	return model.ProductCandidate{
		ID:          id,
		Title:       title,
		Price:       price,
		Rating:      rating,
		ReviewCount: reviews,
	}
}
