// Package ratelimit implements a per-key sliding window rate limiter over
// rolling one-minute and one-hour windows.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	// minRetryAfter is the floor applied to every deny decision.
	minRetryAfter = time.Second
)

// Decision is the outcome of a limit check. RetryAfter is only meaningful
// when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Window     string
}

// Usage reports current consumption for a key.
type Usage struct {
	Minute int       `json:"minute"`
	Hour   int       `json:"hour"`
	Oldest time.Time `json:"oldest,omitzero"`
}

// Limiter tracks request timestamps per caller identity. Buckets hold
// insertion-ordered timestamps no older than one hour; entries beyond the
// hour window are pruned on every check. Only allowed requests are recorded,
// so a denied request does not consume quota.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time

	logger *slog.Logger
	now    func() time.Time

	sweepInterval time.Duration
	sweepCtx      context.Context
	sweepCancel   context.CancelFunc
	sweepWg       sync.WaitGroup
	closeOnce     sync.Once
}

// NewLimiter creates a limiter. If sweepInterval is positive, a background
// goroutine periodically drops buckets whose every timestamp has aged out of
// the hour window, so keys that stop being queried do not retain memory
// forever. A zero interval disables the sweep and leaves pruning fully lazy.
func NewLimiter(sweepInterval time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		buckets:       make(map[string][]time.Time),
		logger:        logger.With("component", "rate-limiter"),
		now:           time.Now,
		sweepInterval: sweepInterval,
	}

	if sweepInterval > 0 {
		l.sweepCtx, l.sweepCancel = context.WithCancel(context.Background())
		l.sweepWg.Add(1)
		go l.sweepLoop()
	}

	return l
}

// Check applies the sliding window algorithm for key:
//
//  1. prune timestamps older than one hour
//  2. deny if the one-minute sub-window is at perMinute, with RetryAfter set
//     to when its oldest timestamp exits the window
//  3. deny symmetrically against perHour over the whole bucket
//  4. otherwise record now and allow
func (l *Limiter) Check(key string, perMinute, perHour int) Decision {
	now := l.now()
	hourAgo := now.Add(-hourWindow)
	minuteAgo := now.Add(-minuteWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := pruneBefore(l.buckets[key], hourAgo)

	// Timestamps are insertion-ordered, so the minute sub-window is the tail.
	minuteStart := len(bucket)
	for i, ts := range bucket {
		if ts.After(minuteAgo) {
			minuteStart = i
			break
		}
	}
	inMinute := len(bucket) - minuteStart

	if inMinute >= perMinute {
		l.buckets[key] = bucket
		retryAfter := bucket[minuteStart].Sub(minuteAgo)
		if retryAfter < minRetryAfter {
			retryAfter = minRetryAfter
		}
		l.logger.Warn("rate limit exceeded", "key", key, "window", "minute", "count", inMinute)
		return Decision{Allowed: false, RetryAfter: retryAfter, Window: "minute"}
	}

	if len(bucket) >= perHour {
		l.buckets[key] = bucket
		retryAfter := bucket[0].Sub(hourAgo)
		if retryAfter < minRetryAfter {
			retryAfter = minRetryAfter
		}
		l.logger.Warn("rate limit exceeded", "key", key, "window", "hour", "count", len(bucket))
		return Decision{Allowed: false, RetryAfter: retryAfter, Window: "hour"}
	}

	l.buckets[key] = append(bucket, now)
	return Decision{Allowed: true}
}

// Usage returns current consumption for a key without recording anything.
func (l *Limiter) Usage(key string) Usage {
	now := l.now()
	minuteAgo := now.Add(-minuteWindow)
	hourAgo := now.Add(-hourWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	var u Usage
	for _, ts := range l.buckets[key] {
		if ts.After(hourAgo) {
			u.Hour++
			if u.Oldest.IsZero() {
				u.Oldest = ts
			}
		}
		if ts.After(minuteAgo) {
			u.Minute++
		}
	}
	return u
}

// Keys returns the number of tracked caller identities.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the background sweep, if one is running. Safe to call multiple
// times; the limiter remains usable for checks afterwards.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		if l.sweepCancel != nil {
			l.sweepCancel()
			l.sweepWg.Wait()
		}
	})
}

func (l *Limiter) sweepLoop() {
	defer l.sweepWg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.sweepCtx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep drops fully-aged buckets and prunes the rest, reclaiming memory for
// keys that are no longer being checked.
func (l *Limiter) sweep() {
	hourAgo := l.now().Add(-hourWindow)

	l.mu.Lock()
	var dropped int
	for key, bucket := range l.buckets {
		pruned := pruneBefore(bucket, hourAgo)
		if len(pruned) == 0 {
			delete(l.buckets, key)
			dropped++
			continue
		}
		l.buckets[key] = pruned
	}
	remaining := len(l.buckets)
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.Debug("swept idle rate limit buckets", "dropped", dropped, "remaining", remaining)
	}
}

// pruneBefore returns the suffix of bucket with timestamps after cutoff.
// Bucket order is preserved; the prefix is copied away so the backing array
// of long-lived buckets does not pin aged-out entries.
func pruneBefore(bucket []time.Time, cutoff time.Time) []time.Time {
	if len(bucket) == 0 {
		return bucket
	}

	start := len(bucket)
	for i, ts := range bucket {
		if ts.After(cutoff) {
			start = i
			break
		}
	}
	if start == 0 {
		return bucket
	}

	pruned := make([]time.Time, len(bucket)-start)
	copy(pruned, bucket[start:])
	return pruned
}
