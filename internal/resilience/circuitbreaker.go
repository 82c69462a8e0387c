// Package resilience provides the Fallback Executor and the failure-handling
// primitives it is built from.
//
// [Execute] walks the ranked candidate models of a capability category until
// one succeeds, reporting which model served the request and whether that was
// a degradation. Each model gets its own [CircuitBreaker] so that a model
// which keeps failing is skipped without paying its latency. [Retry] and
// [Backoff] cover the bounded retry of non-provider operations.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. If they
	// succeed the breaker closes, otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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
	// Name labels log messages, usually "<category>/<model>".
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open state.
	// That many consecutive successes close the breaker. Default: 1.
	HalfOpenMax int

	// Now overrides the time source. Default: [time.Now].
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu                sync.Mutex
	state             State
	consecutiveFail   int
	openedAt          time.Time
	halfOpenInFlight  int
	halfOpenSuccesses int
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
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          cfg.Now,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker allows it and records the outcome. It
// returns [ErrCircuitOpen] without calling fn while the breaker is open or
// while the half-open probe budget is in use.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.halfOpenInFlight--
	}
	if err != nil {
		cb.recordFailure(probe)
	} else {
		cb.recordSuccess(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenInFlight = 0
		cb.halfOpenSuccesses = 0
		slog.Info("circuit breaker half-open", "name", cb.name)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenInFlight+cb.halfOpenSuccesses >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.halfOpenInFlight++
		return true, nil
	}
	return false, nil
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probe bool) {
	if probe || cb.state == StateHalfOpen {
		cb.trip()
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return
	}
	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures {
		cb.trip()
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.consecutiveFail)
	}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probe bool) {
	if !probe {
		cb.consecutiveFail = 0
		return
	}
	cb.halfOpenSuccesses++
	if cb.halfOpenSuccesses >= cb.halfOpenMax {
		cb.state = StateClosed
		cb.consecutiveFail = 0
		cb.halfOpenSuccesses = 0
		slog.Info("circuit breaker closed after successful probes", "name", cb.name)
	}
}

// trip must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccesses = 0
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the actual transition happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccesses = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
