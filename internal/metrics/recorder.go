// Package metrics provides counters and publishing for the resilience core.
package metrics

import "time"

// Recorder receives resilience events as they happen. Implementations must
// be safe for concurrent use and cheap enough to call on every request.
type Recorder interface {
	RecordCacheHit(collection string)
	RecordCacheMiss(collection string)
	RecordRateLimitAllowed(policy string)
	RecordRateLimitDenied(policy, window string)
	RecordBreakerTransition(service, from, to string)
	RecordShutdownRejection()
	RecordDrain(active int, forced bool, took time.Duration)
}

// Publisher ships metric values to an external sink (StatsD/DataDog).
type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Close() error
}
