package metrics

import "time"

// Emitter is a Recorder that keeps local counters in a Tracker and forwards
// each event to a Publisher as it happens.
type Emitter struct {
	tracker   *Tracker
	publisher Publisher
}

// NewEmitter creates an emitter over the given tracker and publisher.
func NewEmitter(tracker *Tracker, publisher Publisher) *Emitter {
	return &Emitter{tracker: tracker, publisher: publisher}
}

func (e *Emitter) RecordCacheHit(collection string) {
	e.tracker.RecordCacheHit(collection)
	e.publisher.Incr("cache.hit", CollectionTag(collection))
}

func (e *Emitter) RecordCacheMiss(collection string) {
	e.tracker.RecordCacheMiss(collection)
	e.publisher.Incr("cache.miss", CollectionTag(collection))
}

func (e *Emitter) RecordRateLimitAllowed(policy string) {
	e.tracker.RecordRateLimitAllowed(policy)
	e.publisher.Incr("ratelimit.allowed", PolicyTag(policy))
}

func (e *Emitter) RecordRateLimitDenied(policy, window string) {
	e.tracker.RecordRateLimitDenied(policy, window)
	e.publisher.Incr("ratelimit.denied", PolicyTag(policy), WindowTag(window))
}

func (e *Emitter) RecordBreakerTransition(service, from, to string) {
	e.tracker.RecordBreakerTransition(service, from, to)
	e.publisher.Incr("breaker.transition", ServiceTag(service), StateTag(to))
}

func (e *Emitter) RecordShutdownRejection() {
	e.tracker.RecordShutdownRejection()
	e.publisher.Incr("shutdown.rejected")
}

func (e *Emitter) RecordDrain(active int, forced bool, took time.Duration) {
	e.tracker.RecordDrain(active, forced, took)
	e.publisher.Timing("shutdown.drain", took)
	if forced {
		e.publisher.Count("shutdown.drain_forced_active", int64(active))
	}
}

var _ Recorder = (*Emitter)(nil)
