package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/shoppick/server/internal/core/errx"
	logx "github.com/shoppick/server/pkg/logger"
)

// RetryConfig configures the retry behavior for LLM calls.
type RetryConfig struct {
	MaxRetries      int           // retry attempts after the first call
	InitialInterval time.Duration // initial backoff interval
	MaxInterval     time.Duration // backoff ceiling
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
	}
}

type retryClient struct {
	inner Client
	cfg   RetryConfig
}

// WithRetry wraps a client with exponential-backoff retry on transient
// errors. Permanent errors (auth failure, malformed request) fail fast.
// Exhaustion surfaces as a generation_failure kind.
func WithRetry(inner Client, cfg RetryConfig) Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 8 * time.Second
	}
	return &retryClient{inner: inner, cfg: cfg}
}

func (r *retryClient) Complete(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	delay := r.cfg.InitialInterval

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		out, err := r.inner.Complete(ctx, system, user)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !errx.Transient(err) {
			return "", errx.Perm(errx.KindGeneration, err, "llm request rejected")
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		logx.Debug().
			Str("client", r.inner.Name()).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying LLM call")

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, r.cfg.MaxInterval)
		}
	}

	return "", errx.New(errx.KindGeneration, lastErr,
		fmt.Sprintf("llm backend exhausted %d retries", r.cfg.MaxRetries))
}

func (r *retryClient) Name() string {
	return r.inner.Name()
}
