package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Tracker is the in-process Recorder: atomic counters plus a point-in-time
// Snapshot for the health surface and the background publisher.
type Tracker struct {
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	limitAllowed atomic.Int64
	limitDenied  atomic.Int64

	breakerTransitions atomic.Int64
	shutdownRejections atomic.Int64

	mu             sync.Mutex
	deniedByPolicy map[string]int64
	breakerStates  map[string]string
	lastDrain      DrainStats
}

// DrainStats describes the most recent drain.
type DrainStats struct {
	ActiveAtCutoff int
	Forced         bool
	Took           time.Duration
}

// Snapshot is a point-in-time view of the tracked counters.
type Snapshot struct {
	CacheHits          int64
	CacheMisses        int64
	LimitAllowed       int64
	LimitDenied        int64
	DeniedByPolicy     map[string]int64
	BreakerTransitions int64
	BreakerStates      map[string]string
	ShutdownRejections int64
	LastDrain          DrainStats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		deniedByPolicy: make(map[string]int64),
		breakerStates:  make(map[string]string),
	}
}

func (t *Tracker) RecordCacheHit(collection string)  { t.cacheHits.Add(1) }
func (t *Tracker) RecordCacheMiss(collection string) { t.cacheMisses.Add(1) }

func (t *Tracker) RecordRateLimitAllowed(policy string) {
	t.limitAllowed.Add(1)
}

func (t *Tracker) RecordRateLimitDenied(policy, window string) {
	t.limitDenied.Add(1)
	t.mu.Lock()
	t.deniedByPolicy[policy]++
	t.mu.Unlock()
}

func (t *Tracker) RecordBreakerTransition(service, from, to string) {
	t.breakerTransitions.Add(1)
	t.mu.Lock()
	t.breakerStates[service] = to
	t.mu.Unlock()
}

func (t *Tracker) RecordShutdownRejection() {
	t.shutdownRejections.Add(1)
}

func (t *Tracker) RecordDrain(active int, forced bool, took time.Duration) {
	t.mu.Lock()
	t.lastDrain = DrainStats{ActiveAtCutoff: active, Forced: forced, Took: took}
	t.mu.Unlock()
}

// Snapshot returns a copy of all counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	denied := make(map[string]int64, len(t.deniedByPolicy))
	for k, v := range t.deniedByPolicy {
		denied[k] = v
	}
	states := make(map[string]string, len(t.breakerStates))
	for k, v := range t.breakerStates {
		states[k] = v
	}
	drain := t.lastDrain
	t.mu.Unlock()

	return Snapshot{
		CacheHits:          t.cacheHits.Load(),
		CacheMisses:        t.cacheMisses.Load(),
		LimitAllowed:       t.limitAllowed.Load(),
		LimitDenied:        t.limitDenied.Load(),
		DeniedByPolicy:     denied,
		BreakerTransitions: t.breakerTransitions.Load(),
		BreakerStates:      states,
		ShutdownRejections: t.shutdownRejections.Load(),
		LastDrain:          drain,
	}
}

// HitRatio returns the overall cache hit ratio.
func (s Snapshot) HitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

var _ Recorder = (*Tracker)(nil)
