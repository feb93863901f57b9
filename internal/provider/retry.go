package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

// RetryConfig configures WithRetry's exponential backoff around transient
// SDK/subprocess errors.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig retries twice more (3 attempts total) with a short
// exponential backoff, bounded well under typical provider timeouts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// WithRetry wraps a Provider so transient Send errors are retried with
// exponential backoff before being recorded as a failed response. A Send
// that returns success=false with no Go error (a recorded provider failure)
// is not retried here — that distinction belongs to the router's own
// fallback/cost-optimized escalation.
type WithRetry struct {
	Provider
	cfg RetryConfig
}

// Retrying wraps p with cfg's backoff policy.
func Retrying(p Provider, cfg RetryConfig) *WithRetry {
	return &WithRetry{Provider: p, cfg: cfg}
}

func (w *WithRetry) Send(ctx context.Context, cfg registry.Config, prompt string, maxTokens, timeoutMs int) (Response, error) {
	maxAttempts := w.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if w.cfg.InitialDelay > 0 {
		bo.InitialInterval = w.cfg.InitialDelay
	}
	if w.cfg.MaxDelay > 0 {
		bo.MaxInterval = w.cfg.MaxDelay
	}
	bo.MaxElapsedTime = 0

	withMax := backoff.WithMaxRetries(bo, uint64(maxAttempts-1))
	withCtx := backoff.WithContext(withMax, ctx)

	var resp Response
	err := backoff.Retry(func() error {
		var sendErr error
		resp, sendErr = w.Provider.Send(ctx, cfg, prompt, maxTokens, timeoutMs)
		return sendErr
	}, withCtx)
	return resp, err
}
