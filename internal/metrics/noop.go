package metrics

import "time"

// NoOpRecorder is a no-operation recorder for tests or when metrics are disabled.
type NoOpRecorder struct{}

func NewNoOpRecorder() *NoOpRecorder { return &NoOpRecorder{} }

func (NoOpRecorder) RecordCacheHit(collection string)                     {}
func (NoOpRecorder) RecordCacheMiss(collection string)                    {}
func (NoOpRecorder) RecordRateLimitAllowed(policy string)                 {}
func (NoOpRecorder) RecordRateLimitDenied(policy, window string)          {}
func (NoOpRecorder) RecordBreakerTransition(service, from, to string)     {}
func (NoOpRecorder) RecordShutdownRejection()                             {}
func (NoOpRecorder) RecordDrain(active int, forced bool, d time.Duration) {}

// NoOpPublisher is a no-operation publisher.
type NoOpPublisher struct{}

func NewNoOpPublisher() *NoOpPublisher { return &NoOpPublisher{} }

func (NoOpPublisher) Gauge(name string, value float64, tags ...string)           {}
func (NoOpPublisher) Incr(name string, tags ...string)                           {}
func (NoOpPublisher) Count(name string, value int64, tags ...string)             {}
func (NoOpPublisher) Timing(name string, duration time.Duration, tags ...string) {}
func (NoOpPublisher) Close() error                                               { return nil }

var _ Recorder = (*NoOpRecorder)(nil)
var _ Publisher = (*NoOpPublisher)(nil)
