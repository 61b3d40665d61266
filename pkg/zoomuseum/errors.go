package zoomuseum

import (
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

type (
	// RateLimitError reports a denied request with the policy and retry hint.
	RateLimitError = types.RateLimitError
	// CircuitOpenError reports a call rejected without reaching the service.
	CircuitOpenError = types.CircuitOpenError
	// TeardownError wraps a failure from one named teardown step.
	TeardownError = types.TeardownError
)

var (
	// ErrCacheMiss indicates that a requested key was not found in the cache.
	ErrCacheMiss = types.ErrCacheMiss
	// ErrShutdownInProgress is returned to work arriving after draining began.
	ErrShutdownInProgress = types.ErrShutdownInProgress
	// ErrStopped is returned once teardown has completed.
	ErrStopped = types.ErrStopped
	// ErrStoreUnavailable indicates the content store cannot be reached.
	ErrStoreUnavailable = types.ErrStoreUnavailable
)

// IsCacheMiss returns true if the error is a cache miss.
func IsCacheMiss(err error) bool {
	return types.IsCacheMiss(err)
}

// IsRateLimited returns true if the error is a rate limit denial.
func IsRateLimited(err error) bool {
	return types.IsRateLimited(err)
}

// IsCircuitOpen returns true if the error indicates an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

// IsShuttingDown returns true if the error indicates the core is draining or
// has stopped.
func IsShuttingDown(err error) bool {
	return types.IsShuttingDown(err)
}
