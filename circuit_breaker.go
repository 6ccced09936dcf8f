package agentclient

import (
	"sync/atomic"
	"time"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitState represents the state of the circuit breaker
type CircuitState int64

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a backend that keeps failing with transport
// errors or 5xx responses, and probes it again after RecoveryTimeout.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       atomic.Int64
	failures    atomic.Int64
	lastFailure atomic.Int64
	successes   atomic.Int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{config: config}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

// Allow checks if the request should be allowed through the circuit breaker
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Now().UnixNano()-cb.lastFailure.Load() >= int64(cb.config.RecoveryTimeout) {
			if cb.state.CompareAndSwap(int64(StateOpen), int64(StateHalfOpen)) {
				cb.successes.Store(0)
			}
			return true
		}
		return false
	default:
		return false
	}
}

// RecordFailure records a failure in the circuit breaker
func (cb *CircuitBreaker) RecordFailure() {
	cb.lastFailure.Store(time.Now().UnixNano())

	switch cb.State() {
	case StateClosed:
		if cb.failures.Add(1) >= int64(cb.config.FailureThreshold) {
			cb.state.Store(int64(StateOpen))
		}
	case StateHalfOpen:
		// a failed probe reopens immediately
		cb.failures.Add(1)
		cb.successes.Store(0)
		cb.state.Store(int64(StateOpen))
	}
}

// RecordSuccess records a success in the circuit breaker
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateClosed:
		cb.failures.Store(0)
	case StateHalfOpen:
		if cb.successes.Add(1) >= int64(cb.config.SuccessThreshold) {
			cb.state.Store(int64(StateClosed))
			cb.failures.Store(0)
			cb.successes.Store(0)
		}
	}
}
