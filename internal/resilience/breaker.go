// Package resilience provides the circuit breaker guarding calls to
// unreliable external operations.
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/config"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

// State is the breaker state.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Classifier decides whether an error counts as a failure toward the
// threshold. Errors it rejects pass through the breaker unaffected.
type Classifier func(error) bool

// CircuitBreaker wraps calls to one protected operation kind. It fails fast
// with a CircuitOpenError while open, and allows a single trial call once the
// recovery timeout has elapsed since the last failure.
//
// The bookkeeping lock is never held across the protected operation: Call
// releases it before invoking the operation and re-acquires it only to record
// the outcome.
type CircuitBreaker struct {
	name string

	failureThreshold int
	recoveryTimeout  time.Duration
	classify         Classifier

	state atomic.Int32

	mu            sync.Mutex
	failureCount  int
	lastFailureAt time.Time
	trialInFlight bool

	logger        *slog.Logger
	onStateChange func(from, to State)
}

// stateTransition allows callbacks to run outside the mutex.
type stateTransition struct {
	from     State
	to       State
	callback func(from, to State)
}

func (t *stateTransition) invoke() {
	if t != nil && t.callback != nil {
		t.callback(t.from, t.to)
	}
}

// NewCircuitBreaker creates a breaker for the named service.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}

	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		classify:         func(err error) bool { return err != nil },
		logger:           logger.With("component", "circuit-breaker", "service", name),
	}

	if cb.failureThreshold <= 0 {
		cb.failureThreshold = 5
	}
	if cb.recoveryTimeout <= 0 {
		cb.recoveryTimeout = 60 * time.Second
	}

	cb.state.Store(int32(StateClosed))
	return cb
}

// SetClassifier replaces the failure classification. Only errors for which fn
// returns true count toward the threshold.
func (cb *CircuitBreaker) SetClassifier(fn Classifier) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if fn != nil {
		cb.classify = fn
	}
}

// SetOnStateChange sets a callback for state changes. It is invoked outside
// the breaker lock, so it may safely read breaker state; it should be fast.
func (cb *CircuitBreaker) SetOnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Call gates the operation:
//
//   - open before the recovery timeout: fail fast, operation never invoked
//   - open after the timeout: transition to half-open and invoke as a trial
//   - closed or half-open: invoke directly
//
// A success while half-open closes the breaker; a classified failure
// increments the count, stamps the failure time, and opens it at threshold.
// The breaker never retries internally.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if err := cb.allow(); err != nil {
		return nil, err
	}

	result, err := fn(ctx)

	switch {
	case err == nil:
		cb.recordSuccess()
	case cb.classify(err):
		cb.recordFailure()
	default:
		// Unrecognized outcome: passes through without touching the
		// counters, but a half-open trial slot must be handed back.
		cb.releaseTrial()
	}

	return result, err
}

// Do is Call for operations without a result value.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := cb.Call(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// allow decides whether the next call may proceed, moving open -> half-open
// when the recovery timeout has elapsed since the last failure. At most one
// trial call is in flight while half-open; everyone else fails fast.
func (cb *CircuitBreaker) allow() error {
	if State(cb.state.Load()) == StateClosed {
		return nil
	}

	var transition *stateTransition
	var allowed bool

	cb.mu.Lock()
	switch State(cb.state.Load()) {
	case StateClosed:
		allowed = true

	case StateOpen:
		if time.Since(cb.lastFailureAt) >= cb.recoveryTimeout {
			transition = cb.transitionTo(StateHalfOpen)
			cb.trialInFlight = true
			allowed = true
		}

	case StateHalfOpen:
		if !cb.trialInFlight {
			cb.trialInFlight = true
			allowed = true
		}
	}
	cb.mu.Unlock()

	transition.invoke()

	if !allowed {
		return &types.CircuitOpenError{Service: cb.name}
	}
	return nil
}

// releaseTrial frees the half-open trial slot after an outcome that counted
// neither as success nor as failure.
func (cb *CircuitBreaker) releaseTrial() {
	cb.mu.Lock()
	if State(cb.state.Load()) == StateHalfOpen {
		cb.trialInFlight = false
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) recordSuccess() {
	var transition *stateTransition

	cb.mu.Lock()
	if State(cb.state.Load()) == StateHalfOpen {
		// Trial call succeeded; the dependency has recovered.
		transition = cb.transitionTo(StateClosed)
	}
	cb.mu.Unlock()

	transition.invoke()
}

func (cb *CircuitBreaker) recordFailure() {
	var transition *stateTransition

	cb.mu.Lock()
	cb.failureCount++
	cb.lastFailureAt = time.Now()

	switch State(cb.state.Load()) {
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			transition = cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// Trial call failed; back to open, timer restarted by the stamp above.
		transition = cb.transitionTo(StateOpen)
	}
	count := cb.failureCount
	cb.mu.Unlock()

	if transition != nil && transition.to == StateOpen {
		cb.logger.Error("circuit breaker opened",
			"failures", count,
			"recovery_timeout", cb.recoveryTimeout,
		)
	}
	transition.invoke()
}

// transitionTo changes state while the mutex is held. failureCount resets
// exactly on the transition into closed. The returned transition must be
// invoked after releasing the mutex.
func (cb *CircuitBreaker) transitionTo(newState State) *stateTransition {
	oldState := State(cb.state.Load())
	if oldState == newState {
		return nil
	}

	if newState == StateClosed {
		cb.failureCount = 0
		cb.lastFailureAt = time.Time{}
	}
	cb.trialInFlight = false

	cb.state.Store(int32(newState))
	cb.logger.Info("circuit breaker state changed", "from", oldState.String(), "to", newState.String())

	if cb.onStateChange != nil {
		return &stateTransition{from: oldState, to: newState, callback: cb.onStateChange}
	}
	return nil
}

// Name returns the protected service name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

// IsOpen returns true if the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// Reset forces the breaker back to closed, clearing its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failureCount = 0
	cb.lastFailureAt = time.Time{}
	cb.trialInFlight = false
	cb.state.Store(int32(StateClosed))
	cb.mu.Unlock()
}

// Stats returns breaker bookkeeping for introspection.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:         State(cb.state.Load()),
		FailureCount:  cb.failureCount,
		LastFailureAt: cb.lastFailureAt,
	}
}

// Stats contains circuit breaker bookkeeping.
type Stats struct {
	State         State
	FailureCount  int
	LastFailureAt time.Time
}
