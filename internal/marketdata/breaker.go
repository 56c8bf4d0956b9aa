package marketdata

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's position in its state machine.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker isolates one failing provider. Closed passes calls
// through; FailureThreshold consecutive failures open it; after
// RecoveryTimeout a single trial call is allowed (half-open), whose
// outcome decides between closed and open again.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	mu            sync.Mutex
	state         BreakerState
	failures      int
	lastFailure   time.Time
	trialInFlight bool
}

func NewCircuitBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed now. In half-open state only
// one trial call is admitted until RecordSuccess or RecordFailure lands.
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(cb.lastFailure) >= cb.recoveryTimeout {
			cb.state = StateHalfOpen
			cb.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.trialInFlight = false
	breakerStateGauge.WithLabelValues(cb.name).Set(0)
}

// RecordFailure bumps the consecutive failure count; reaching the
// threshold (or failing the half-open trial) opens the breaker and
// restarts the recovery timer.
func (cb *CircuitBreaker) RecordFailure(now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = now
	cb.trialInFlight = false
	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
		breakerStateGauge.WithLabelValues(cb.name).Set(1)
		breakerOpenTotal.WithLabelValues(cb.name).Inc()
	}
}

// Reset forces the breaker closed with zero failures. Administrative
// override only.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.trialInFlight = false
	breakerStateGauge.WithLabelValues(cb.name).Set(0)
}

// State returns the current state without advancing it. An open breaker
// past its recovery timeout still reports open until the next Allow.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
