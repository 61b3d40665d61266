// Package types contains shared types for the resilience core: the error
// taxonomy, health reporting types, and small shared value types.
package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheMiss is the normal "not cached" outcome, not a failure.
	ErrCacheMiss = errors.New("core: key not found")

	// ErrShutdownInProgress is returned to work arriving after draining began.
	ErrShutdownInProgress = errors.New("core: shutdown in progress")

	// ErrStopped is returned once teardown has completed.
	ErrStopped = errors.New("core: stopped")

	// ErrStoreUnavailable indicates the backing content store cannot be reached.
	ErrStoreUnavailable = errors.New("core: content store unavailable")
)

// RateLimitError is the structured rejection for a request that exceeded a
// rate-limit policy. RetryAfter is the wait suggested to the caller, floored
// at one second.
type RateLimitError struct {
	Policy     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("core: rate limit exceeded for policy %q, retry after %s", e.Policy, e.RetryAfter)
}

// CircuitOpenError is the structured rejection surfaced when a protected
// operation is skipped because its circuit breaker is open.
type CircuitOpenError struct {
	Service string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("core: circuit breaker open for service %q", e.Service)
}

// TeardownError records a shutdown callback that failed or timed out. It is
// logged and collected but never aborts the remaining callbacks.
type TeardownError struct {
	Name string
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("core: teardown callback %q failed: %v", e.Name, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}

// IsCacheMiss reports whether err is the cache-miss outcome.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsCircuitOpen reports whether err is a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// IsShuttingDown reports whether err indicates the process is draining or stopped.
func IsShuttingDown(err error) bool {
	return errors.Is(err, ErrShutdownInProgress) || errors.Is(err, ErrStopped)
}
