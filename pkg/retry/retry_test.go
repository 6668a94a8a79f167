package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		BackoffStrategy: &ConstantBackoff{Interval: time.Millisecond},
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errFlaky
	}, fastConfig(3))

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("fatal")
	cfg := fastConfig(5)
	cfg.RetryableErrors = []error{errFlaky}

	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return fatal
	}, cfg)

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 5, BackoffStrategy: &ConstantBackoff{Interval: time.Hour}}

	calls := 0
	err := Retry(ctx, func() error {
		calls++
		cancel()
		return errFlaky
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnListedNonRetryableError(t *testing.T) {
	unavailable := errors.New("unavailable")
	cfg := fastConfig(5)
	cfg.NonRetryableErrors = []error{unavailable}

	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return fmt.Errorf("publish: %w", unavailable)
	}, cfg)

	assert.ErrorIs(t, err, unavailable)
	assert.Equal(t, 1, calls)
}

func TestRetryWithDiscard(t *testing.T) {
	var discarded error
	err := RetryWithDiscard(context.Background(), func() error { return errFlaky }, fastConfig(2),
		func(err error) error {
			discarded = err
			return errors.New("discarded")
		})

	assert.EqualError(t, err, "discarded")
	assert.ErrorIs(t, discarded, errFlaky)
}

func TestBackoffStrategies(t *testing.T) {
	exp := &ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, exp.NextBackoff(1))
	assert.Equal(t, 400*time.Millisecond, exp.NextBackoff(3))
	assert.Equal(t, time.Second, exp.NextBackoff(10))

	jittered := NewDefaultExponentialBackoff()
	d := jittered.NextBackoff(1)
	assert.GreaterOrEqual(t, d, 500*time.Millisecond)
	assert.LessOrEqual(t, d, 600*time.Millisecond)

	lin := &LinearBackoff{InitialInterval: time.Second, MaxInterval: 3 * time.Second, Step: time.Second}
	assert.Equal(t, 2*time.Second, lin.NextBackoff(2))
	assert.Equal(t, 3*time.Second, lin.NextBackoff(7))
}
