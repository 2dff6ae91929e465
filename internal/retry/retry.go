// Package retry runs upstream calls with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/token-analytics/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Total attempts including the first
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound for any single delay
	Multiplier   float64       // Growth factor between delays

	// Retryable decides whether err warrants another attempt. nil retries every error.
	Retryable func(err error) bool
}

// DefaultConfig returns the backoff used for RPC reads: 200ms, 400ms, 800ms
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Result describes how a retried operation went
type Result struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"-"`
}

// Func is an operation that can be retried
type Func[T any] func(ctx context.Context, attempt int) (T, error)

// Do runs fn until it succeeds, the error is not retryable, attempts run out
// or ctx is done. The last error is returned wrapped with the attempt count.
func Do[T any](ctx context.Context, cfg Config, fn Func[T]) (T, Result, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	result := Result{}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var zero T
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		v, err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration,
				}).Debug("Operation succeeded after retry")
			}
			return v, result, nil
		}
		result.LastError = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			break
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := Delay(cfg, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": cfg.MaxAttempts,
			"delay":       delay,
			"error":       err.Error(),
		}).Debug("Operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return zero, result, fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		}
	}

	result.TotalDuration = time.Since(start)
	return zero, result, fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
}

// Run is Do for operations without a result value
func Run(ctx context.Context, cfg Config, fn func(ctx context.Context, attempt int) error) error {
	_, _, err := Do(ctx, cfg, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

// Delay returns the backoff before attempt+1: InitialDelay * Multiplier^(attempt-1), capped at MaxDelay
func Delay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
