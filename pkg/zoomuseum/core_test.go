package zoomuseum

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/config"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/resilience"
)

func newTestCore(t *testing.T, mutate ...func(*config.Config)) *Core {
	t.Helper()
	cfg := config.ForTesting()
	for _, m := range mutate {
		m(cfg)
	}
	core, err := NewFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = core.Shutdown(ctx)
	})
	return core
}

func TestFetchCachesAndCollapses(t *testing.T) {
	core := newTestCore(t, func(cfg *config.Config) {
		cfg.Cache.DefaultTTL = time.Minute
	})

	var calls atomic.Int64
	load := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "organisms-page-1", nil
	}

	for i := 0; i < 3; i++ {
		v, err := core.Fetch(context.Background(), "organisms", "list:1", load)
		require.NoError(t, err)
		assert.Equal(t, "organisms-page-1", v)
	}
	assert.EqualValues(t, 1, calls.Load(), "repeat fetches must hit the cache")

	s := core.Metrics()
	assert.EqualValues(t, 1, s.CacheMisses)
	assert.EqualValues(t, 2, s.CacheHits)

	// The cache's own counters agree with the recorder: one lookup per fetch.
	cs := core.Cache("organisms").Stats()
	assert.EqualValues(t, 2, cs.Hits)
	assert.EqualValues(t, 1, cs.Misses)
}

func TestFetchErrorNotCached(t *testing.T) {
	core := newTestCore(t)

	boom := errors.New("upstream down")
	var calls atomic.Int64
	load := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, boom
	}

	for i := 0; i < 2; i++ {
		_, err := core.Fetch(context.Background(), "blogs", "list:1", load)
		require.ErrorIs(t, err, boom)
	}
	assert.EqualValues(t, 2, calls.Load(), "errors must not be cached")
}

func TestInvalidateCollection(t *testing.T) {
	core := newTestCore(t, func(cfg *config.Config) {
		cfg.Cache.DefaultTTL = time.Minute
	})

	ctx := context.Background()
	for _, key := range []string{"list:1", "list:2", "detail:42"} {
		_, err := core.Fetch(ctx, "organisms", key, func(context.Context) (any, error) {
			return key, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 3, core.Cache("organisms").Len())

	removed := core.InvalidateCollection("organisms")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, core.Cache("organisms").Len())
}

func TestCollectionTTLs(t *testing.T) {
	core := newTestCore(t, func(cfg *config.Config) {
		cfg.Cache.DefaultTTL = time.Minute
		cfg.Cache.CollectionTTL = map[string]time.Duration{
			"organisms": time.Hour,
		}
	})

	assert.Equal(t, time.Hour, core.Cache("organisms").DefaultTTL())
	assert.Equal(t, time.Minute, core.Cache("videos").DefaultTTL())
}

func TestBreakerSharedByName(t *testing.T) {
	core := newTestCore(t)

	cms := core.Breaker("cms")
	assert.Same(t, cms, core.Breaker("cms"))
	assert.NotSame(t, cms, core.Breaker("search"))

	// Trip the cms breaker; search stays closed.
	boom := errors.New("cms down")
	for i := 0; i < 2; i++ {
		_ = cms.Do(context.Background(), func(context.Context) error { return boom })
	}
	assert.Equal(t, resilience.StateOpen, cms.State())
	assert.Equal(t, resilience.StateClosed, core.Breaker("search").State())

	err := cms.Do(context.Background(), func(context.Context) error { return nil })
	assert.True(t, IsCircuitOpen(err))
}

func TestBreakerTransitionsRecorded(t *testing.T) {
	core := newTestCore(t)

	cb := core.Breaker("cms")
	for i := 0; i < 2; i++ {
		_ = cb.Do(context.Background(), func(context.Context) error {
			return errors.New("fail")
		})
	}

	s := core.Metrics()
	assert.EqualValues(t, 1, s.BreakerTransitions)
	assert.Equal(t, "open", s.BreakerStates["cms"])
}

func TestContentWithoutStore(t *testing.T) {
	core := newTestCore(t)

	var dest map[string]any
	err := core.Content(context.Background(), "organisms", "42", &dest)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestHandlerChain(t *testing.T) {
	core := newTestCore(t, func(cfg *config.Config) {
		cfg.RateLimit.PerIP.PerMinute = 2
		cfg.RateLimit.PerIP.PerHour = 1000
	})

	h := core.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/organisms", nil)
	req.RemoteAddr = "1.2.3.4:5678"

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestHandlerRejectsWhileDraining(t *testing.T) {
	cfg := config.ForTesting()
	core, err := NewFromConfig(cfg)
	require.NoError(t, err)

	h := core.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	require.NoError(t, core.Shutdown(context.Background()))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/organisms", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.EqualValues(t, 1, core.Metrics().ShutdownRejections)
}

func TestCollectionHandlerHeaders(t *testing.T) {
	core := newTestCore(t, func(cfg *config.Config) {
		cfg.Cache.CollectionTTL = map[string]time.Duration{"organisms": time.Hour}
	})

	h := core.CollectionHandler("organisms", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organisms":[]}`))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/organisms", nil))

	assert.Equal(t, "public, max-age=3600, stale-while-revalidate=3600", rr.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rr.Header().Get("ETag"))
}

func TestHealth(t *testing.T) {
	core := newTestCore(t)

	h := core.Health()
	assert.Equal(t, "healthy", h.Status.String())
	assert.Equal(t, "disabled", h.Components["store"].Status.String())
	assert.Contains(t, h.Components, "cache")
	assert.Contains(t, h.Components, "rate_limiter")
	assert.Contains(t, h.Components, "circuit_breakers")
}

func TestHealthDegradedWithOpenBreaker(t *testing.T) {
	core := newTestCore(t)

	cb := core.Breaker("cms")
	for i := 0; i < 2; i++ {
		_ = cb.Do(context.Background(), func(context.Context) error {
			return errors.New("fail")
		})
	}

	h := core.Health()
	assert.Equal(t, "degraded", h.Status.String())
	assert.Equal(t, "degraded", h.Components["circuit_breakers"].Status.String())
}

func TestHealthUnhealthyWhileDraining(t *testing.T) {
	core, err := NewFromConfig(config.ForTesting())
	require.NoError(t, err)
	require.NoError(t, core.Shutdown(context.Background()))

	h := core.Health()
	assert.Equal(t, "unhealthy", h.Status.String())
}

func TestShutdownIdempotent(t *testing.T) {
	core, err := NewFromConfig(config.ForTesting())
	require.NoError(t, err)

	require.NoError(t, core.Shutdown(context.Background()))
	assert.ErrorIs(t, core.Shutdown(context.Background()), ErrStopped)
}

func TestUserHeaderLimiting(t *testing.T) {
	cfg := config.ForTesting()
	cfg.RateLimit.PerIP.PerMinute = 1000
	cfg.RateLimit.PerUser.PerMinute = 2
	cfg.RateLimit.PerUser.PerHour = 1000
	core, err := NewFromConfig(cfg, WithUserHeader("X-User-ID"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Shutdown(context.Background()) })

	h := core.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/organisms", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	req.Header.Set("X-User-ID", "42")

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// A different user from the same IP is unaffected.
	other := httptest.NewRequest(http.MethodGet, "/organisms", nil)
	other.RemoteAddr = "1.2.3.4:5678"
	other.Header.Set("X-User-ID", "43")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestShutdownRecordsDrain(t *testing.T) {
	core, err := NewFromConfig(config.ForTesting())
	require.NoError(t, err)

	// Leave one request in flight so the drain is forced at the timeout.
	require.NoError(t, core.Coordinator().Enter())
	require.NoError(t, core.Shutdown(context.Background()))

	drain := core.Metrics().LastDrain
	assert.True(t, drain.Forced)
	assert.Equal(t, 1, drain.ActiveAtCutoff)
	assert.Greater(t, drain.Took, time.Duration(0))
}
