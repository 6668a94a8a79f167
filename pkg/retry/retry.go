package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// RetryableFunc defines a function that can be retried
type RetryableFunc func() error

// RetryConfig holds the configuration for retrying operations
type RetryConfig struct {
	MaxAttempts     int
	BackoffStrategy BackoffStrategy
	Logger          logger.Logger
	// RetryableErrors limits retries to these sentinels; empty retries everything
	RetryableErrors []error
	// NonRetryableErrors end the loop at once even when RetryableErrors is empty
	NonRetryableErrors []error
}

func (c *RetryConfig) withDefaults() *RetryConfig {
	out := *c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.BackoffStrategy == nil {
		out.BackoffStrategy = NewDefaultExponentialBackoff()
	}
	if out.Logger == nil {
		out.Logger = logger.NewNop()
	}
	return &out
}

// Retry runs fn until it succeeds, fails with a non-retryable error, runs
// out of attempts or ctx is done.
func Retry(ctx context.Context, fn RetryableFunc, cfg *RetryConfig) error {
	cfg = cfg.withDefaults()

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled by context: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if !isRetryable(lastErr, cfg.RetryableErrors) || matchesAny(lastErr, cfg.NonRetryableErrors) {
			cfg.Logger.Warn("Non-retryable error encountered, giving up",
				"error", lastErr,
				"attempt", attempt)
			return lastErr
		}

		backoff := cfg.BackoffStrategy.NextBackoff(attempt)

		cfg.Logger.Info("Retrying after error",
			"error", lastErr,
			"attempt", attempt,
			"maxAttempts", cfg.MaxAttempts,
			"backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all %d retry attempts failed, last error: %w", cfg.MaxAttempts, lastErr)
}

func isRetryable(err error, retryableErrors []error) bool {
	return len(retryableErrors) == 0 || matchesAny(err, retryableErrors)
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RetryWithDiscard retries fn and hands the final error to discardFn
func RetryWithDiscard(ctx context.Context, fn RetryableFunc, cfg *RetryConfig, discardFn func(error) error) error {
	err := Retry(ctx, fn, cfg)

	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Error("All retries failed, applying discard policy",
				"error", err,
				"maxAttempts", cfg.MaxAttempts)
		}
		return discardFn(err)
	}
	return nil
}
