package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BackgroundPublisher publishes snapshot gauges at regular intervals with
// context-based cancellation support.
type BackgroundPublisher struct {
	publisher Publisher
	snapshot  func() Snapshot
	logger    *slog.Logger
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBackgroundPublisher creates a background publisher. snapshotFn is called
// on each interval to get the current counters.
func NewBackgroundPublisher(publisher Publisher, interval time.Duration, snapshotFn func() Snapshot, logger *slog.Logger) *BackgroundPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &BackgroundPublisher{
		publisher: publisher,
		interval:  interval,
		snapshot:  snapshotFn,
		logger:    logger.With("component", "metrics-background"),
	}
}

// Start begins the background publishing loop.
func (b *BackgroundPublisher) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.run()
	b.logger.Info("background metrics publisher started", "interval", b.interval)
}

// Stop cancels the background loop and waits for it to exit.
func (b *BackgroundPublisher) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.logger.Info("background metrics publisher stopped")
}

func (b *BackgroundPublisher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.publish()
		}
	}
}

func (b *BackgroundPublisher) publish() {
	s := b.snapshot()

	b.publisher.Gauge("cache.hit_ratio", s.HitRatio())
	b.publisher.Gauge("cache.hits", float64(s.CacheHits))
	b.publisher.Gauge("cache.misses", float64(s.CacheMisses))
	b.publisher.Gauge("ratelimit.allowed_total", float64(s.LimitAllowed))
	b.publisher.Gauge("ratelimit.denied_total", float64(s.LimitDenied))
	b.publisher.Gauge("shutdown.rejected_total", float64(s.ShutdownRejections))

	for service, state := range s.BreakerStates {
		open := 0.0
		if state == "open" {
			open = 1.0
		}
		b.publisher.Gauge("breaker.open", open, ServiceTag(service))
	}
}
