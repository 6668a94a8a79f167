package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy decides how long to wait after a failed attempt.
// Attempts are numbered from 1.
type BackoffStrategy interface {
	NextBackoff(attempt int) time.Duration
}

// ConstantBackoff waits Interval between every attempt
type ConstantBackoff struct {
	Interval time.Duration
}

func (b *ConstantBackoff) NextBackoff(int) time.Duration {
	return b.Interval
}

// ExponentialBackoff multiplies the delay by Multiplier per attempt, adds up
// to JitterFactor of it at random and caps the result at MaxInterval.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (b *ExponentialBackoff) NextBackoff(attempt int) time.Duration {
	delay := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(max(attempt, 1)-1))

	if b.JitterFactor > 0 {
		delay *= 1 + rand.Float64()*b.JitterFactor
	}

	return capped(time.Duration(delay), b.MaxInterval)
}

// LinearBackoff grows the delay by Step after every attempt
type LinearBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Step            time.Duration
}

func (b *LinearBackoff) NextBackoff(attempt int) time.Duration {
	steps := time.Duration(max(attempt, 1) - 1)
	return capped(b.InitialInterval+steps*b.Step, b.MaxInterval)
}

// capped bounds d by limit; a zero limit leaves it unbounded
func capped(d, limit time.Duration) time.Duration {
	if limit > 0 && (d > limit || d < 0) {
		return limit
	}
	return d
}

// NewDefaultExponentialBackoff starts at 500ms, grows by half each attempt
// and never waits more than a minute
func NewDefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     time.Minute,
		Multiplier:      1.5,
		JitterFactor:    0.2,
	}
}
