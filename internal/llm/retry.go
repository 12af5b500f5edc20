package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/askdb/askdb/internal/observability"
	"golang.org/x/time/rate"
)

type RetryConfig struct {
	MaxRetries int
	Backoff    time.Duration
	// RateLimit caps calls per second across attempts. Zero disables it.
	RateLimit float64
}

// RetryingClient retries transient failures of the wrapped client with
// exponential backoff.
type RetryingClient struct {
	next    Client
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRetryingClient(next Client, cfg RetryConfig, logger *slog.Logger) *RetryingClient {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &RetryingClient{next: next, cfg: cfg, limiter: limiter, logger: logger, sleep: sleepContext}
}

func (c *RetryingClient) Complete(ctx context.Context, messages []Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.Backoff * time.Duration(1<<(attempt-1))
			if err := c.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("wait for model rate limit: %w", err)
			}
		}

		text, err := c.next.Complete(ctx, messages)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !Retryable(err) || ctx.Err() != nil {
			return "", err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		c.logger.DebugContext(ctx, "model call failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", c.cfg.MaxRetries),
			slog.String("error", err.Error()),
		)
		observability.IncrementModelRetries()
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// Retryable reports whether a failed call may succeed when repeated.
// Cancellation and client errors other than 408 and 429 are final. A deadline
// is retryable only as a per-attempt timeout; Complete stops as soon as the
// caller's own context is done.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	status := StatusCode(err)
	if status >= 400 && status < 500 {
		return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
