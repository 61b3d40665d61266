// Package shutdown implements the drain-aware request tracker and graceful
// teardown sequencing for one process.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/config"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

// Phase is the coordinator lifecycle phase. It only moves forward:
// running -> draining -> stopped.
type Phase int32

const (
	PhaseRunning Phase = iota
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Callback is one registered teardown step. Each runs sequentially during
// shutdown, bounded by its own timeout.
type Callback struct {
	Name string
	Fn   func(context.Context) error
}

// DrainRecorder receives the drain outcome: how many requests were still in
// flight when the wait ended, whether continuation was forced, and how long
// the wait took.
type DrainRecorder interface {
	RecordDrain(active int, forced bool, took time.Duration)
}

// Coordinator tracks in-flight requests, rejects new work once draining has
// begun, and runs teardown in a deterministic order. The request-handling
// layer brackets every request with Enter/Exit; everything else is owned by
// the coordinator.
type Coordinator struct {
	drainTimeout    time.Duration
	callbackTimeout time.Duration
	pollInterval    time.Duration

	phase atomic.Int32

	mu        sync.Mutex
	active    int
	callbacks []Callback
	closers   []namedCloser

	startedAt time.Time
	logger    *slog.Logger
	recorder  DrainRecorder
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// NewCoordinator creates a coordinator in the running phase.
func NewCoordinator(cfg config.ShutdownConfig, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		drainTimeout:    cfg.DrainTimeout,
		callbackTimeout: cfg.CallbackTimeout,
		pollInterval:    cfg.PollInterval,
		startedAt:       time.Now(),
		logger:          logger.With("component", "shutdown"),
	}

	if c.drainTimeout <= 0 {
		c.drainTimeout = 30 * time.Second
	}
	if c.callbackTimeout <= 0 {
		c.callbackTimeout = 10 * time.Second
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 1 * time.Second
	}

	return c
}

// SetRecorder sets the metrics sink for drain outcomes. Call before Shutdown;
// a nil recorder disables recording.
func (c *Coordinator) SetRecorder(rec DrainRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = rec
}

// Enter registers one in-flight request. It is rejected with
// ErrShutdownInProgress once draining has begun; a rejected Enter must not be
// paired with Exit.
func (c *Coordinator) Enter() error {
	if Phase(c.phase.Load()) != PhaseRunning {
		return types.ErrShutdownInProgress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the lock: Shutdown may have flipped the phase between
	// the fast-path load and here.
	if Phase(c.phase.Load()) != PhaseRunning {
		return types.ErrShutdownInProgress
	}
	c.active++
	return nil
}

// Exit unregisters one in-flight request. It always decrements, including
// for requests that were admitted before draining began.
func (c *Coordinator) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
}

// Active returns the current in-flight request count.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Draining reports whether new work is being rejected.
func (c *Coordinator) Draining() bool {
	return Phase(c.phase.Load()) != PhaseRunning
}

// Uptime returns the time elapsed since the coordinator was created.
func (c *Coordinator) Uptime() time.Duration {
	return time.Since(c.startedAt)
}

// OnShutdown registers a named teardown callback. Callbacks run in
// registration order; registration is rejected once draining has begun.
func (c *Coordinator) OnShutdown(name string, fn func(context.Context) error) error {
	if c.Draining() {
		return types.ErrShutdownInProgress
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, Callback{Name: name, Fn: fn})
	return nil
}

// RegisterCloser registers a last-resort resource (e.g. a pooled store
// client) closed after all callbacks have run.
func (c *Coordinator) RegisterCloser(name string, closer io.Closer) error {
	if c.Draining() {
		return types.ErrShutdownInProgress
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, namedCloser{name: name, closer: closer})
	return nil
}

// Shutdown drives the full teardown sequence: flip to draining, wait for
// in-flight requests up to the drain timeout (proceeding either way), run
// every callback once in registration order with per-callback timeouts, close
// the registered closers, and mark the process stopped.
//
// Callback failures and timeouts are collected as TeardownErrors and joined
// into the returned error; they never abort the remaining steps. A second
// Shutdown call is a no-op returning ErrStopped.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if !c.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseDraining)) {
		return types.ErrStopped
	}

	c.logger.Info("graceful shutdown initiated", "active_requests", c.Active())

	drainStart := time.Now()
	leftover := c.waitForActive(ctx)

	c.mu.Lock()
	rec := c.recorder
	c.mu.Unlock()
	if rec != nil {
		rec.RecordDrain(leftover, leftover > 0, time.Since(drainStart))
	}

	var errs []error
	errs = append(errs, c.runCallbacks(ctx)...)
	errs = append(errs, c.closeResources()...)

	c.phase.Store(int32(PhaseStopped))
	c.logger.Info("graceful shutdown completed",
		"uptime", c.Uptime().Round(time.Second),
		"teardown_errors", len(errs),
	)

	return errors.Join(errs...)
}

// waitForActive polls the in-flight count until it reaches zero or the drain
// timeout elapses, whichever comes first. On timeout it logs the requests
// left behind and forces continuation. Returns the in-flight count when the
// wait ended; non-zero means continuation was forced.
func (c *Coordinator) waitForActive(ctx context.Context) int {
	deadline := time.Now().Add(c.drainTimeout)

	for {
		active := c.Active()
		if active == 0 {
			c.logger.Info("all active requests completed")
			return 0
		}

		if time.Now().After(deadline) {
			c.logger.Warn("drain timeout exceeded, forcing shutdown",
				"active_requests", active,
				"timeout", c.drainTimeout,
			)
			return active
		}

		c.logger.Info("waiting for active requests", "active_requests", active)

		select {
		case <-ctx.Done():
			c.logger.Warn("drain wait canceled", "active_requests", active)
			return active
		case <-time.After(c.pollInterval):
		}
	}
}

// runCallbacks executes every registered callback sequentially, not
// concurrently, to keep teardown ordering deterministic and logs
// attributable.
func (c *Coordinator) runCallbacks(ctx context.Context) []error {
	c.mu.Lock()
	callbacks := make([]Callback, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.Unlock()

	if len(callbacks) == 0 {
		return nil
	}

	c.logger.Info("running shutdown callbacks", "count", len(callbacks))

	var errs []error
	for i, cb := range callbacks {
		if err := c.runCallback(ctx, cb); err != nil {
			terr := &types.TeardownError{Name: cb.Name, Err: err}
			c.logger.Error("shutdown callback failed",
				"callback", cb.Name,
				"index", i+1,
				"total", len(callbacks),
				"error", err,
			)
			errs = append(errs, terr)
			continue
		}
		c.logger.Info("shutdown callback completed",
			"callback", cb.Name,
			"index", i+1,
			"total", len(callbacks),
		)
	}
	return errs
}

// runCallback bounds one callback by the per-callback timeout. A callback
// that ignores its context and outlives the timeout leaks its goroutine; the
// coordinator moves on regardless.
func (c *Coordinator) runCallback(ctx context.Context, cb Callback) error {
	cbCtx, cancel := context.WithTimeout(ctx, c.callbackTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- cb.Fn(cbCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-cbCtx.Done():
		return cbCtx.Err()
	}
}

func (c *Coordinator) closeResources() []error {
	c.mu.Lock()
	closers := make([]namedCloser, len(c.closers))
	copy(closers, c.closers)
	c.mu.Unlock()

	var errs []error
	for _, nc := range closers {
		if err := nc.closer.Close(); err != nil {
			c.logger.Error("failed to close resource", "resource", nc.name, "error", err)
			errs = append(errs, &types.TeardownError{Name: nc.name, Err: err})
			continue
		}
		c.logger.Info("resource closed", "resource", nc.name)
	}
	return errs
}
