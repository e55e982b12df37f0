package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc/routing"
	"github.com/paulpham157/neptune-fetcher/internal/metrics"
)

// Querier executes one API query and decodes the JSON response into out.
// This is what application layers should depend on.
type Querier interface {
	Query(ctx context.Context, op Operation, out any) error
}

// ClientConfig holds client behavior settings.
type ClientConfig struct {
	Retry RetryConfig
	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64
	Burst     int
}

// Client is the high-level Querier over a single provider.
type Client struct {
	provider Provider
	retry    RetryConfig
	limiter  *rate.Limiter
}

// NewClient creates a new API client.
func NewClient(p Provider, cfg ClientConfig) *Client {
	c := &Client{
		provider: p,
		retry:    cfg.Retry,
	}
	if c.retry.MaxAttempts == 0 {
		c.retry = DefaultRetryConfig
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return c
}

// Query executes op with rate limiting and retry. Transient failures are
// retried; inaccessible-project failures come back as
// *domain.ProjectInaccessibleError naming op.Project.
func (c *Client) Query(ctx context.Context, op Operation, out any) error {
	start := time.Now()

	_, err := routing.CallWithRetry(ctx, op.Name, c.retry, func(ctx context.Context) (struct{}, error) {
		if err := c.wait(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.provider.Execute(ctx, op, out)
	})

	metrics.RequestLatency.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())
	metrics.RequestsTotal.WithLabelValues(op.Name, outcome(err)).Inc()

	if err != nil {
		var pe *domain.ProjectInaccessibleError
		if errors.As(err, &pe) && pe.Project == "" && op.Project != "" {
			return &domain.ProjectInaccessibleError{Project: domain.ProjectIdentifier(op.Project), Err: pe.Err}
		}
		return fmt.Errorf("%s: %w", op.Name, err)
	}
	return nil
}

// Health returns the provider's health status.
func (c *Client) Health() HealthStatus {
	return c.provider.GetHealth()
}

// Close releases the underlying provider.
func (c *Client) Close() error {
	return c.provider.Close()
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	start := time.Now()
	err := c.limiter.Wait(ctx)
	metrics.RateLimitWait.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Wait refuses upfront when the deadline is too close.
		return fmt.Errorf("rate limiter: %w", context.DeadlineExceeded)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrProjectInaccessible):
		return "inaccessible"
	default:
		var re *routing.RetryError
		if errors.As(err, &re) {
			return "exhausted"
		}
		return "error"
	}
}
