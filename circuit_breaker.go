package tangguh

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState is the breaker state machine position.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name.
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

// CircuitBreaker short-circuits calls to a failing dependency. After
// FailureThreshold consecutive failures the circuit opens and calls fail
// immediately; once RecoveryTimeout elapses exactly one trial call is
// admitted. The trial's success closes the circuit, its failure reopens it
// and restarts the timer. One breaker guards one client, so providers never
// share failure state.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu            sync.Mutex
	state         CircuitState
	failures      int
	lastFailure   time.Time
	openedAt      time.Time
	trialInFlight bool

	now func() time.Time
}

// NewCircuitBreaker creates a breaker with the given thresholds, applying
// defaults for zero values.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Execute runs op through the breaker. When the circuit is open and the
// recovery timeout has not elapsed, op is not invoked and a CircuitOpen
// error is returned. Admission and the half-open trial reservation happen
// in one critical section so concurrent callers cannot both become the
// trial call. A context-cancelled op leaves the breaker state untouched.
func (cb *CircuitBreaker) Execute(op func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := op()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.recoveryTimeout {
			return cb.openError()
		}
		cb.state = StateHalfOpen
		cb.trialInFlight = true
		return nil
	case StateHalfOpen:
		if cb.trialInFlight {
			return cb.openError()
		}
		cb.trialInFlight = true
		return nil
	default:
		return cb.openError()
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A cancelled call never completed against the dependency; release the
	// half-open trial slot but do not count the outcome.
	if err != nil && errors.Is(err, context.Canceled) {
		cb.trialInFlight = false
		return
	}

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

// onFailure and onSuccess run with the lock held.

func (cb *CircuitBreaker) onFailure() {
	now := cb.now()
	cb.lastFailure = now

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.openedAt = now
		}
	case StateHalfOpen:
		cb.trialInFlight = false
		cb.failures++
		cb.state = StateOpen
		cb.openedAt = now
	case StateOpen:
		// A call admitted before the transition finished; restart the timer.
		cb.openedAt = now
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.trialInFlight = false
		cb.state = StateClosed
		cb.failures = 0
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
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

func (cb *CircuitBreaker) openError() *ClientError {
	return &ClientError{
		Type:      ErrorTypeCircuitOpen,
		Message:   "circuit breaker is open",
		Retryable: false,
		Timestamp: cb.now(),
	}
}
