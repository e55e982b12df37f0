package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc/provider"
	"github.com/paulpham157/neptune-fetcher/internal/metrics"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	// Jitter is the fraction of each delay that is randomized, in [0, 1].
	Jitter float64
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
	Jitter:          0.2,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionProjectInaccessible
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionProjectInaccessible:
		return "inaccessible"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RetryError is returned once retries are exhausted. It unwraps to the last
// error so callers can still inspect the underlying failure.
type RetryError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts (%s): %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	if errors.Is(err, domain.ErrProjectInaccessible) {
		return ActionProjectInaccessible
	}

	var te *provider.TransportError
	if errors.As(err, &te) {
		// A google.rpc.Status body is more precise than the HTTP status.
		if te.Err != nil {
			if s, ok := status.FromError(te.Err); ok {
				return classifyCode(s.Code())
			}
		}
		switch te.Category {
		case provider.CategoryTransient:
			return ActionRetry
		case provider.CategoryNotFoundOrInaccessible:
			return ActionProjectInaccessible
		default:
			return ActionFatal
		}
	}

	var ue *domain.UnexpectedResponseError
	if errors.As(err, &ue) {
		return ActionFatal
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
		return classifyCode(s.Code())
	}

	sLower := strings.ToLower(err.Error())

	if strings.Contains(sLower, "does not exist") || strings.Contains(sLower, "not found") ||
		strings.Contains(sLower, "forbidden") {
		return ActionProjectInaccessible
	}

	if strings.Contains(sLower, "invalid") || strings.Contains(sLower, "bad request") ||
		strings.Contains(sLower, "unauthorized") {
		return ActionFatal
	}

	// Default to Retry (Network, 5xx, etc)
	return ActionRetry
}

func classifyCode(c codes.Code) ErrorAction {
	switch c {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.DeadlineExceeded:
		return ActionRetry
	case codes.NotFound, codes.PermissionDenied:
		return ActionProjectInaccessible
	default:
		return ActionFatal
	}
}

// CallWithRetry executes call with exponential backoff. Transient failures are
// retried up to config.MaxAttempts; exhaustion returns a *RetryError. Failures
// classified as inaccessible are returned immediately as a
// *domain.ProjectInaccessibleError, other fatal failures unchanged.
func CallWithRetry[T any](
	ctx context.Context,
	name string,
	config RetryConfig,
	call func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error
	maxAttempts := max(config.MaxAttempts, 1)
	start := time.Now()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		action := ClassifyError(err)
		metrics.RetriesTotal.WithLabelValues(name, action.String()).Inc()

		switch action {
		case ActionProjectInaccessible:
			return zero, asProjectInaccessible(err)
		case ActionFatal:
			return zero, err // Stop immediately, do not retry
		}

		// ActionRetry: continue loop
		if attempt == maxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, config)
		if hint := retryHint(err); hint > delay {
			delay = hint
		}
		slog.Debug("Retrying request", "operation", name, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &RetryError{Attempts: maxAttempts, Elapsed: time.Since(start), Last: lastErr}
}

func asProjectInaccessible(err error) error {
	var pe *domain.ProjectInaccessibleError
	if errors.As(err, &pe) {
		return pe
	}
	return &domain.ProjectInaccessibleError{Err: err}
}

// retryHint returns the delay the server asked for, if any.
func retryHint(err error) time.Duration {
	var te *provider.TransportError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter
	}
	if s, ok := status.FromError(err); ok {
		for _, d := range s.Details() {
			if info, ok := d.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
				return info.GetRetryDelay().AsDuration()
			}
		}
	}
	return 0
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter > 0 {
		j := math.Min(config.Jitter, 1)
		delay = delay*(1-j) + delay*j*rand.Float64()
	}
	return time.Duration(delay)
}
