// Package health exposes Prometheus metrics and a readiness probe over the
// engine's backends.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shoppick/server/internal/agent/session"
)

// Turn outcomes used as metric label values.
const (
	OutcomeCompleted     = "completed"
	OutcomeClarification = "clarification"
	OutcomeFailed        = "failed"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoppick",
		Name:      "turns_total",
		Help:      "Processed turns by mode and outcome.",
	}, []string{"mode", "outcome"})

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shoppick",
		Name:      "turn_duration_seconds",
		Help:      "End-to-end turn latency by outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoppick",
		Name:      "active_sessions",
		Help:      "Live sessions in the store.",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shoppick",
		Name:      "cache_hits_total",
		Help:      "Cache lookups served without backend calls.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shoppick",
		Name:      "cache_misses_total",
		Help:      "Cache lookups that required a backend call.",
	})

	backendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoppick",
		Name:      "backend_errors_total",
		Help:      "Errors by backend and error kind.",
	}, []string{"backend", "kind"})
)

// ObserveTurn records one processed turn.
func ObserveTurn(mode, outcome string, elapsed time.Duration) {
	turnsTotal.WithLabelValues(mode, outcome).Inc()
	turnDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveBackendError records a typed backend failure.
func ObserveBackendError(backend, kind string) {
	backendErrors.WithLabelValues(backend, kind).Inc()
}

// SetActiveSessions publishes the current live-session count.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// SetCacheStats publishes cumulative cache counters. Prometheus counters
// only move forward, so deltas against the last published values are added.
var (
	cacheStatsMu         sync.Mutex
	lastHits, lastMisses int64
)

func SetCacheStats(hits, misses int64) {
	cacheStatsMu.Lock()
	defer cacheStatsMu.Unlock()

	if d := hits - lastHits; d > 0 {
		cacheHits.Add(float64(d))
	}
	if d := misses - lastMisses; d > 0 {
		cacheMisses.Add(float64(d))
	}
	lastHits, lastMisses = hits, misses
}

// BackendStatus describes one configured backend for the probe payload.
type BackendStatus struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
}

// Probes is the readiness payload.
type Probes struct {
	Status         string        `json:"status"`
	ActiveSessions int           `json:"active_sessions"`
	LLM            BackendStatus `json:"llm"`
	Search         BackendStatus `json:"search"`
}

// Checker builds probe payloads against the session store.
type Checker struct {
	Store  session.Store
	LLM    BackendStatus
	Search BackendStatus
}

// Check reports liveness state. The engine is "ok" when both backends are
// configured and "degraded" otherwise; a session store failure is the only
// hard error.
func (c *Checker) Check(ctx context.Context) (*Probes, error) {
	n, err := c.Store.ActiveCount(ctx)
	if err != nil {
		return nil, err
	}
	SetActiveSessions(n)

	status := "ok"
	if !c.LLM.Configured || !c.Search.Configured {
		status = "degraded"
	}
	return &Probes{
		Status:         status,
		ActiveSessions: n,
		LLM:            c.LLM,
		Search:         c.Search,
	}, nil
}
