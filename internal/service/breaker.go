package service

import (
	"sync"
	"time"

	"github.com/omerorhan/points-quote-service/internal/storage"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return storage.StateClosed
	case StateOpen:
		return storage.StateOpen
	case StateHalfOpen:
		return storage.StateHalfOpen
	default:
		return "UNKNOWN"
	}
}

// StateChangeFunc is called after every transition, outside the breaker lock
type StateChangeFunc func(name string, from, to BreakerState)

// CircuitBreaker tracks consecutive logical-call failures of one dependency.
// All reads and transitions happen under mu.
type CircuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time
	onChange     StateChangeFunc

	mu         sync.Mutex
	state      BreakerState
	generation uint64
	failures   int
	openedAt   time.Time
	probing    bool
}

// BreakerSnapshot is a consistent copy of the breaker's counters
type BreakerSnapshot struct {
	Name                string
	State               BreakerState
	ConsecutiveFailures int
	OpenedAt            time.Time
}

func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// OnStateChange registers the transition callback. Call before the breaker is shared.
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.onChange = fn
}

// State returns the current state, moving OPEN to HALF_OPEN once the reset timeout has elapsed
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	from, to, changed := cb.refreshLocked()
	state := cb.state
	cb.mu.Unlock()

	cb.notify(from, to, changed)
	return state
}

func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	from, to, changed := cb.refreshLocked()
	snap := BreakerSnapshot{
		Name:                cb.name,
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		OpenedAt:            cb.openedAt,
	}
	cb.mu.Unlock()

	cb.notify(from, to, changed)
	return snap
}

// Allow reports whether a logical call may start. In HALF_OPEN only one probe is let through
// until it reports back via Success, Failure or Release. The returned generation must be
// handed back with the outcome; outcomes from an older generation are ignored.
func (cb *CircuitBreaker) Allow() (uint64, bool) {
	cb.mu.Lock()
	from, to, changed := cb.refreshLocked()
	generation := cb.generation
	allowed := true
	switch cb.state {
	case StateOpen:
		allowed = false
	case StateHalfOpen:
		if cb.probing {
			allowed = false
		} else {
			cb.probing = true
		}
	}
	cb.mu.Unlock()

	cb.notify(from, to, changed)
	return generation, allowed
}

func (cb *CircuitBreaker) Success(generation uint64) {
	cb.mu.Lock()
	if generation != cb.generation {
		cb.mu.Unlock()
		return
	}
	from := cb.state
	cb.failures = 0
	if from != StateClosed {
		cb.setStateLocked(StateClosed)
		cb.openedAt = time.Time{}
	}
	cb.mu.Unlock()

	cb.notify(from, StateClosed, from != StateClosed)
}

func (cb *CircuitBreaker) Failure(generation uint64) {
	cb.mu.Lock()
	if generation != cb.generation {
		cb.mu.Unlock()
		return
	}
	from := cb.state
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.tripLocked()
		}
	case StateHalfOpen:
		cb.failures++
		cb.tripLocked()
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to, from != to)
}

// Release gives back a probe slot without recording an outcome, used when the caller gave up
func (cb *CircuitBreaker) Release(generation uint64) {
	cb.mu.Lock()
	if generation == cb.generation && cb.state == StateHalfOpen {
		cb.probing = false
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) tripLocked() {
	cb.setStateLocked(StateOpen)
	cb.openedAt = cb.now()
}

func (cb *CircuitBreaker) setStateLocked(state BreakerState) {
	cb.state = state
	cb.generation++
	cb.probing = false
}

func (cb *CircuitBreaker) refreshLocked() (BreakerState, BreakerState, bool) {
	if cb.state == StateOpen && !cb.now().Before(cb.openedAt.Add(cb.resetTimeout)) {
		cb.setStateLocked(StateHalfOpen)
		return StateOpen, StateHalfOpen, true
	}
	return cb.state, cb.state, false
}

func (cb *CircuitBreaker) notify(from, to BreakerState, changed bool) {
	if changed && cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}
