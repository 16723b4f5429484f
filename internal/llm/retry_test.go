package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoppick/server/internal/core/errx"
)

type scriptedClient struct {
	errs  []error
	out   string
	calls int
}

func (s *scriptedClient) Complete(context.Context, string, string) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return s.out, nil
}

func (s *scriptedClient) Name() string { return "scripted" }

func fastRetry(max int) RetryConfig {
	return RetryConfig{MaxRetries: max, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestWithRetrySucceedsAfterTransientErrors(t *testing.T) {
	inner := &scriptedClient{
		errs: []error{
			errors.New("status 503 service unavailable"),
			errors.New("rate limit exceeded"),
		},
		out: "ok",
	}

	out, err := WithRetry(inner, fastRetry(2)).Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetryFailsFastOnPermanentError(t *testing.T) {
	inner := &scriptedClient{
		errs: []error{errors.New("invalid api key")},
	}

	_, err := WithRetry(inner, fastRetry(3)).Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, errx.IsKind(err, errx.KindGeneration))
	assert.True(t, errx.IsPermanent(err))
}

func TestWithRetryExhaustion(t *testing.T) {
	inner := &scriptedClient{
		errs: []error{
			errors.New("connection reset by peer"),
			errors.New("connection reset by peer"),
			errors.New("connection reset by peer"),
		},
	}

	_, err := WithRetry(inner, fastRetry(2)).Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.True(t, errx.IsKind(err, errx.KindGeneration))
	assert.False(t, errx.IsPermanent(err))
}

func TestWithRetryHonorsContextCancel(t *testing.T) {
	inner := &scriptedClient{
		errs: []error{errors.New("status 503")},
		out:  "never",
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithRetry(inner, RetryConfig{MaxRetries: 3, InitialInterval: time.Second, MaxInterval: time.Second}).
		Complete(ctx, "s", "u")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetryName(t *testing.T) {
	c := WithRetry(&scriptedClient{out: "x"}, DefaultRetryConfig())
	assert.Equal(t, "scripted", c.Name())
}
