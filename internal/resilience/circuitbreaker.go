// Package resilience keeps the live pipeline responsive when a passage store
// misbehaves.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// fails fast once a store keeps erroring. [FallbackGroup] puts a breaker in
// front of each of several interchangeable backends and tries them in
// order, and [FailoverStore] applies that to [scripture.Store] so a local
// replica can serve passages while the primary database is down.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// is open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open
	// state. Default: 3.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. Errors
	// it rejects are returned to the caller untouched and count as success.
	// Default: every non-nil error is a failure.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	isFailure     func(error) bool
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeSuccesses  int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
		state:         StateClosed,
	}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it and returns fn's error. While
// open it returns [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	var changes []stateChange

	cb.mu.Lock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		changes = append(changes, cb.transition(StateHalfOpen))
	}
	if cb.state == StateOpen || (cb.state == StateHalfOpen && cb.probes >= cb.halfOpenMax) {
		cb.mu.Unlock()
		cb.notify(changes)
		return ErrCircuitOpen
	}
	probing := cb.state == StateHalfOpen
	if probing {
		cb.probes++
	}
	cb.mu.Unlock()
	cb.notify(changes)

	err := fn()

	cb.mu.Lock()
	var change *stateChange
	if cb.isFailure(err) {
		change = cb.recordFailure(probing)
	} else {
		change = cb.recordSuccess(probing)
	}
	cb.mu.Unlock()
	if change != nil {
		cb.notify([]stateChange{*change})
	}
	return err
}

type stateChange struct{ from, to State }

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probing bool) *stateChange {
	if probing {
		if cb.state != StateHalfOpen {
			return nil
		}
		c := cb.open()
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return &c
	}
	cb.consecutiveFail++
	if cb.state != StateClosed || cb.consecutiveFail < cb.maxFailures {
		return nil
	}
	failures := cb.consecutiveFail
	c := cb.open()
	slog.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", failures)
	return &c
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probing bool) *stateChange {
	if !probing {
		cb.consecutiveFail = 0
		return nil
	}
	if cb.state != StateHalfOpen {
		return nil
	}
	cb.probeSuccesses++
	if cb.probeSuccesses < cb.halfOpenMax {
		return nil
	}
	c := cb.transition(StateClosed)
	slog.Info("circuit breaker closed after successful probes", "name", cb.name)
	return &c
}

func (cb *CircuitBreaker) open() stateChange {
	c := cb.transition(StateOpen)
	cb.openedAt = cb.now()
	return c
}

// transition must be called with cb.mu held. Counters restart on every
// transition.
func (cb *CircuitBreaker) transition(to State) stateChange {
	c := stateChange{from: cb.state, to: to}
	cb.state = to
	cb.consecutiveFail = 0
	cb.probes = 0
	cb.probeSuccesses = 0
	return c
}

func (cb *CircuitBreaker) notify(changes []stateChange) {
	if cb.onStateChange == nil {
		return
	}
	for _, c := range changes {
		if c.from != c.to {
			cb.onStateChange(cb.name, c.from, c.to)
		}
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	c := cb.transition(StateClosed)
	cb.mu.Unlock()
	cb.notify([]stateChange{c})
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
