package zoomuseum

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/cache"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/config"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/httpmw"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/metrics"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/metrics/datadog"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/ratelimit"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/resilience"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/shutdown"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/store"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

// Core wires the resilience components together: per-collection caches,
// the shared rate limiter, named circuit breakers, the optional content
// store, metrics, and the shutdown coordinator that tears it all down.
type Core struct {
	cfg    *config.Config
	logger *slog.Logger
	opts   CoreOptions

	mu       sync.Mutex
	caches   map[string]*cache.TTLCache
	memos    map[string]*cache.Memoizer
	breakers map[string]*resilience.CircuitBreaker

	limiter *ratelimit.Limiter
	perIP   ratelimit.Profile
	perUser ratelimit.Profile

	coord *shutdown.Coordinator
	store *store.ContentStore

	tracker   *metrics.Tracker
	recorder  metrics.Recorder
	publisher metrics.Publisher
	bg        *metrics.BackgroundPublisher

	respCache *httpmw.ResponseCache
}

// New creates a Core with default configuration.
func New(opts ...Option) (*Core, error) {
	return NewFromConfig(config.DefaultConfig(), opts...)
}

// NewFromFile creates a Core from a JSON config file with environment
// overrides applied. A missing file falls back to defaults.
func NewFromFile(path string, opts ...Option) (*Core, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// NewFromConfig creates a Core from configuration.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var co CoreOptions
	for _, opt := range opts {
		opt(&co)
	}
	logger := co.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Core{
		cfg:      cfg,
		logger:   logger,
		opts:     co,
		caches:   make(map[string]*cache.TTLCache),
		memos:    make(map[string]*cache.Memoizer),
		breakers: make(map[string]*resilience.CircuitBreaker),
		perIP:    ratelimit.PerIPProfile(cfg.RateLimit.PerIP.PerMinute, cfg.RateLimit.PerIP.PerHour),
		perUser:  ratelimit.PerUserProfile(cfg.RateLimit.PerUser.PerMinute, cfg.RateLimit.PerUser.PerHour),
		coord:    shutdown.NewCoordinator(cfg.Shutdown, logger),
		tracker:  metrics.NewTracker(),
	}

	c.limiter = ratelimit.NewLimiter(cfg.RateLimit.SweepInterval, logger)
	_ = c.coord.OnShutdown("rate-limiter", func(context.Context) error {
		c.limiter.Close()
		return nil
	})

	if err := c.initMetrics(); err != nil {
		return nil, err
	}
	c.coord.SetRecorder(c.recorder)

	if cfg.ResponseCache.Enabled {
		rc, err := httpmw.NewResponseCache(cfg.ResponseCache, logger)
		if err != nil {
			return nil, fmt.Errorf("response cache: %w", err)
		}
		c.respCache = rc
		_ = c.coord.RegisterCloser("response-cache", rc)
	}

	if cfg.Store.Enabled && !co.DisableStore {
		c.store = store.New(cfg.Store, logger)
		_ = c.coord.RegisterCloser("content-store", c.store)
	}

	for collection := range cfg.Cache.CollectionTTL {
		c.cacheLocked(collection)
	}

	logger.Info("resilience core initialized",
		"rate_limit_enabled", cfg.RateLimit.Enabled,
		"breaker_enabled", cfg.CircuitBreaker.Enabled,
		"store_enabled", c.store != nil,
		"response_cache_enabled", c.respCache != nil)
	return c, nil
}

func (c *Core) initMetrics() error {
	c.recorder = c.tracker

	if !c.cfg.Metrics.Enabled {
		return nil
	}

	pub := c.opts.Publisher
	if pub == nil {
		p, err := datadog.NewPublisher(&c.cfg.Metrics.DataDog, c.logger)
		if err != nil {
			return fmt.Errorf("metrics publisher: %w", err)
		}
		pub = p
	}
	c.publisher = pub
	c.recorder = metrics.NewEmitter(c.tracker, pub)

	c.bg = metrics.NewBackgroundPublisher(pub, c.cfg.Metrics.PublishInterval, c.tracker.Snapshot, c.logger)
	c.bg.Start(context.Background())

	_ = c.coord.OnShutdown("metrics", func(context.Context) error {
		c.bg.Stop()
		return pub.Close()
	})
	return nil
}

// Cache returns the TTL cache for a collection, creating it on first use
// with the collection's configured TTL.
func (c *Core) Cache(collection string) *cache.TTLCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cacheLocked(collection)
}

func (c *Core) cacheLocked(collection string) *cache.TTLCache {
	if tc, ok := c.caches[collection]; ok {
		return tc
	}
	tc := cache.NewTTLCache(c.cfg.Cache.TTLFor(collection), c.logger)
	c.caches[collection] = tc
	c.memos[collection] = cache.NewMemoizer(tc)
	return tc
}

// Fetch returns the cached value for key in the collection's cache, loading
// it through fn on a miss. Concurrent misses for the same key share a single
// fn call. Errors from fn are returned and never cached.
func (c *Core) Fetch(ctx context.Context, collection, key string, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	c.cacheLocked(collection)
	memo := c.memos[collection]
	c.mu.Unlock()

	v, cached, err := memo.Do(ctx, key, c.cfg.Cache.TTLFor(collection), fn)
	if cached {
		c.recorder.RecordCacheHit(collection)
	} else {
		c.recorder.RecordCacheMiss(collection)
	}
	return v, err
}

// InvalidateCollection drops every entry in the collection's cache and, when
// the HTTP response cache is enabled, flushes it as well. Returns the number
// of TTL cache entries removed.
func (c *Core) InvalidateCollection(collection string) int {
	n := c.Cache(collection).InvalidatePattern("")
	if c.respCache != nil {
		if err := c.respCache.InvalidateAll(); err != nil {
			c.logger.Warn("response cache flush failed", "error", err)
		}
	}
	c.logger.Info("collection invalidated", "collection", collection, "entries", n)
	return n
}

// Breaker returns the circuit breaker for a named external service, creating
// it on first use. Breakers share the configured threshold and recovery
// timeout but track state independently.
func (c *Core) Breaker(service string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[service]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(service, c.cfg.CircuitBreaker, c.logger)
	cb.SetOnStateChange(func(from, to resilience.State) {
		c.recorder.RecordBreakerTransition(service, from.String(), to.String())
	})
	c.breakers[service] = cb
	return cb
}

// Content reads a document from the content store through the "store"
// breaker, falling back fast when the store has been failing. The caller
// supplies the destination to decode into.
func (c *Core) Content(ctx context.Context, collection, id string, dest any) error {
	if c.store == nil {
		return ErrStoreUnavailable
	}
	return c.Breaker("store").Do(ctx, func(ctx context.Context) error {
		return c.store.Get(ctx, collection, id, dest)
	})
}

// PutContent writes a document to the content store through the "store"
// breaker and invalidates the collection's caches.
func (c *Core) PutContent(ctx context.Context, collection, id string, doc any) error {
	if c.store == nil {
		return ErrStoreUnavailable
	}
	err := c.Breaker("store").Do(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, collection, id, doc)
	})
	if err != nil {
		return err
	}
	c.InvalidateCollection(collection)
	return nil
}

// Limiter exposes the shared sliding window limiter for callers that need to
// check policies outside the HTTP middleware.
func (c *Core) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Coordinator exposes the shutdown coordinator so servers can register their
// own teardown callbacks.
func (c *Core) Coordinator() *shutdown.Coordinator {
	return c.coord
}

// Handler wraps next with the full middleware chain: drain rejection first,
// then rate limiting, then the shared response cache when enabled.
func (c *Core) Handler(next http.Handler) http.Handler {
	mws := []httpmw.Middleware{
		httpmw.Drain(c.coord, c.recorder),
	}
	if c.cfg.RateLimit.Enabled {
		mws = append(mws, httpmw.RateLimit(c.limiter, c.perIP, httpmw.ClientIPKeyFunc(c.opts.TrustXFF), c.recorder))
		if c.opts.UserHeader != "" {
			mws = append(mws, httpmw.RateLimit(c.limiter, c.perUser, httpmw.UserKeyFunc(c.opts.UserHeader, c.opts.TrustXFF), c.recorder))
		}
	}
	if c.respCache != nil {
		mws = append(mws, c.respCache.Middleware())
	}
	return httpmw.Chain(mws...)(next)
}

// CollectionHandler wraps a collection's read handler with browser cache
// headers derived from the collection's TTL, including ETag revalidation.
func (c *Core) CollectionHandler(collection string, next http.Handler) http.Handler {
	ttl := c.cfg.Cache.TTLFor(collection)
	return httpmw.CacheControl(httpmw.CacheControlOptions{
		MaxAge:               ttl,
		StaleWhileRevalidate: ttl,
		Public:               true,
		ETag:                 true,
	})(next)
}

// HealthHandler serves the health probe payload.
func (c *Core) HealthHandler() http.Handler {
	return httpmw.HealthHandler(c.Health)
}

// Health assembles the probe payload from cheap component snapshots.
func (c *Core) Health() types.Health {
	h := types.Health{
		Timestamp:  time.Now().UTC(),
		UptimeSecs: c.coord.Uptime().Seconds(),
		Components: make(map[string]types.ComponentHealth),
	}

	c.mu.Lock()
	totalEntries := 0
	for _, tc := range c.caches {
		totalEntries += tc.Len()
	}
	openBreakers := 0
	for _, cb := range c.breakers {
		if cb.IsOpen() {
			openBreakers++
		}
	}
	c.mu.Unlock()

	h.Components["cache"] = types.ComponentHealth{
		Status: types.HealthStatusHealthy,
		Detail: fmt.Sprintf("%d entries", totalEntries),
	}
	h.Components["rate_limiter"] = types.ComponentHealth{
		Status: types.HealthStatusHealthy,
		Detail: fmt.Sprintf("%d active keys", c.limiter.Keys()),
	}

	breakerStatus := types.HealthStatusHealthy
	if openBreakers > 0 {
		breakerStatus = types.HealthStatusDegraded
	}
	h.Components["circuit_breakers"] = types.ComponentHealth{
		Status: breakerStatus,
		Detail: fmt.Sprintf("%d open", openBreakers),
	}

	if c.store != nil {
		h.Components["store"] = c.store.Health()
	} else {
		h.Components["store"] = types.ComponentHealth{Status: types.HealthStatusDisabled}
	}

	h.Aggregate()
	if c.coord.Draining() {
		h.Status = types.HealthStatusUnhealthy
	}
	return h
}

// Metrics returns a point-in-time snapshot of the core's counters.
func (c *Core) Metrics() metrics.Snapshot {
	return c.tracker.Snapshot()
}

// Shutdown drains in-flight work and tears the core down. It is safe to call
// once; subsequent calls return ErrStopped.
func (c *Core) Shutdown(ctx context.Context) error {
	return c.coord.Shutdown(ctx)
}
