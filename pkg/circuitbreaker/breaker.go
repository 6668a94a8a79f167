package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
)

// State represents the state of the circuit breaker
type State int32

const (
	StateClosed   State = iota // requests flow
	StateHalfOpen              // probing a recovering dependency
	StateOpen                  // requests are rejected
)

// String returns the lower-case name used in metrics and logs
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name             string
	state            atomic.Int32
	failureThreshold int64
	resetTimeout     time.Duration
	halfOpenMaxCalls int64
	failureCount     atomic.Int64
	halfOpenCalls    atomic.Int64
	lastStateChange  time.Time
	mutex            sync.RWMutex
	now              func() time.Time
}

// CircuitBreakerConfig configures a CircuitBreaker
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int64
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}

	cb := &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		resetTimeout:     config.ResetTimeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		now:              time.Now,
	}
	cb.lastStateChange = cb.now()
	return cb
}

// Name identifies the guarded dependency
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow checks if a request is allowed based on the circuit breaker state
func (cb *CircuitBreaker) Allow() bool {
	switch cb.GetState() {
	case StateClosed:
		return true
	case StateOpen:
		cb.mutex.RLock()
		elapsed := cb.now().Sub(cb.lastStateChange)
		cb.mutex.RUnlock()

		if elapsed < cb.resetTimeout {
			return false
		}
		if cb.transition(StateOpen, StateHalfOpen) {
			cb.halfOpenCalls.Store(0)
		}
		return cb.Allow()
	case StateHalfOpen:
		return cb.halfOpenCalls.Add(1) <= cb.halfOpenMaxCalls
	default:
		return false
	}
}

// Success reports a successful operation
func (cb *CircuitBreaker) Success() {
	switch cb.GetState() {
	case StateHalfOpen:
		if cb.transition(StateHalfOpen, StateClosed) {
			cb.failureCount.Store(0)
		}
	case StateClosed:
		cb.failureCount.Store(0)
	}
}

// Failure reports a failed operation
func (cb *CircuitBreaker) Failure() {
	switch cb.GetState() {
	case StateClosed:
		if cb.failureCount.Add(1) >= cb.failureThreshold {
			cb.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateHalfOpen, StateOpen)
	}
}

// Execute runs fn when the breaker allows it and records the outcome.
// A rejected call returns a retryable service-unavailable error.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return apperrors.NewServiceUnavailableError("circuit breaker " + cb.name + " is open")
	}

	if err := fn(); err != nil {
		cb.Failure()
		return err
	}

	cb.Success()
	return nil
}

// Reset forces the breaker closed and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state.Store(int32(StateClosed))
	cb.failureCount.Store(0)
	cb.halfOpenCalls.Store(0)
	cb.lastStateChange = cb.now()
}

func (cb *CircuitBreaker) transition(from, to State) bool {
	if !cb.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}

	cb.mutex.Lock()
	cb.lastStateChange = cb.now()
	cb.mutex.Unlock()
	return true
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	return State(cb.state.Load())
}

// GetMetrics returns metrics about the circuit breaker
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mutex.RLock()
	lastChange := cb.lastStateChange
	cb.mutex.RUnlock()

	return map[string]interface{}{
		"name":              cb.name,
		"state":             cb.GetState().String(),
		"failure_count":     cb.failureCount.Load(),
		"failure_threshold": cb.failureThreshold,
		"half_open_calls":   cb.halfOpenCalls.Load(),
		"reset_timeout":     cb.resetTimeout.String(),
		"last_state_change": lastChange,
		"time_in_state":     cb.now().Sub(lastChange).String(),
	}
}
