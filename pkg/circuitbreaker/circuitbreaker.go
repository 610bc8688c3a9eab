package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen is a state where a limited number of trial requests are allowed to test the system's recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs the given request if the circuit breaker is closed or half-open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
}

// breaker is the mutex-guarded implementation of CircuitBreaker.
type breaker struct {
	failureThreshold uint32        // Consecutive failures required to trip the circuit.
	successThreshold uint32        // Consecutive successes in HalfOpen required to close it.
	timeout          time.Duration // How long the circuit stays Open before probing.

	successes    uint32    // Current consecutive successes (HalfOpen).
	failures     uint32    // Current consecutive failures (Closed).
	lastTripTime time.Time // When the circuit last opened.
	state        State
	mu           sync.Mutex
}

// New creates a new CircuitBreaker with the specified settings.
// failureThreshold: the number of consecutive failures required to open the circuit.
// successThreshold: the number of consecutive successes in the half-open state required to close the circuit.
// timeout: the duration the circuit remains open before transitioning to half-open.
func New(failureThreshold, successThreshold uint32, timeout time.Duration) CircuitBreaker {
	return &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
	}
}

// State returns the current state of the circuit breaker.
func (cb *breaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute wraps the execution of a function with the circuit breaker logic.
func (cb *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	if !cb.admit() {
		return nil, ErrCircuitOpen
	}

	res, err := req()
	if err != nil {
		cb.onFailure()
		return nil, err
	}
	cb.onSuccess()
	return res, nil
}

// admit decides whether a request may proceed, moving Open to HalfOpen
// once the timeout has elapsed.
func (cb *breaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == Open && time.Since(cb.lastTripTime) > cb.timeout {
		cb.state = HalfOpen
		cb.successes = 0
	}
	return cb.state != Open
}

// onSuccess handles the logic when a request succeeds.
func (cb *breaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = Closed
			cb.failures = 0
			cb.successes = 0
		}
	case Closed:
		cb.failures = 0
	}
}

// onFailure handles the logic when a request fails.
func (cb *breaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.trip()
	case Closed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.trip()
		}
	}
}

// trip opens the circuit. Assumes the lock is held.
func (cb *breaker) trip() {
	cb.state = Open
	cb.lastTripTime = time.Now()
	cb.failures = 0
	cb.successes = 0
}
