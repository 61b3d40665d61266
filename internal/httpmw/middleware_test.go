package httpmw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/config"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/metrics"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/ratelimit"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/shutdown"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	stage := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(stage("outer"), stage("inner"))(okHandler("ok"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestDrainMiddleware(t *testing.T) {
	coord := shutdown.NewCoordinator(config.ForTesting().Shutdown, nil)
	tracker := metrics.NewTracker()
	h := Drain(coord, tracker)(okHandler("ok"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/organisms", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, coord.Shutdown(context.Background()))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/organisms", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "shutting_down", body["status"])

	assert.EqualValues(t, 1, tracker.Snapshot().ShutdownRejections)
}

func TestDrainMiddlewareTracksActive(t *testing.T) {
	coord := shutdown.NewCoordinator(config.ForTesting().Shutdown, nil)

	inFlight := make(chan struct{})
	release := make(chan struct{})
	h := Drain(coord, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(inFlight)
		<-release
	}))

	go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	<-inFlight
	assert.Equal(t, 1, coord.Active())
	close(release)

	require.Eventually(t, func() bool { return coord.Active() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewLimiter(0, nil)
	tracker := metrics.NewTracker()
	profile := ratelimit.PerIPProfile(2, 1000)

	h := RateLimit(limiter, profile, ClientIPKeyFunc(false), tracker)(okHandler("ok"))

	req := httptest.NewRequest(http.MethodGet, "/organisms", nil)
	req.RemoteAddr = "1.2.3.4:5678"

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["status"])
	assert.Equal(t, "per-ip", body["policy"])

	// A different client is unaffected.
	other := httptest.NewRequest(http.MethodGet, "/organisms", nil)
	other.RemoteAddr = "5.6.7.8:1234"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusOK, rr.Code)

	s := tracker.Snapshot()
	assert.EqualValues(t, 3, s.LimitAllowed)
	assert.EqualValues(t, 1, s.LimitDenied)
}

func TestClientIPKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		trustXFF   bool
		want       string
	}{
		{"remote addr", "1.2.3.4:5678", "", false, "1.2.3.4"},
		{"xff ignored when untrusted", "1.2.3.4:5678", "9.9.9.9", false, "1.2.3.4"},
		{"xff first hop when trusted", "1.2.3.4:5678", "9.9.9.9, 8.8.8.8", true, "9.9.9.9"},
		{"no port", "1.2.3.4", "", false, "1.2.3.4"},
		{"empty", "", "", false, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIPKeyFunc(tt.trustXFF)(r))
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	fn := UserKeyFunc("X-User-ID", false)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "1.2.3.4:5678"
	r.Header.Set("X-User-ID", "42")
	assert.Equal(t, "42", fn(r))

	r.Header.Del("X-User-ID")
	assert.Equal(t, "1.2.3.4", fn(r))
}

func TestCacheControlHeaders(t *testing.T) {
	mw := CacheControl(CacheControlOptions{
		MaxAge:               time.Hour,
		StaleWhileRevalidate: 24 * time.Hour,
		Public:               true,
		ETag:                 true,
	})
	h := mw(okHandler(`{"organisms":[]}`))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/organisms", nil))

	assert.Equal(t, "public, max-age=3600, stale-while-revalidate=86400", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "Accept-Encoding", rr.Header().Get("Vary"))
	assert.NotEmpty(t, rr.Header().Get("Expires"))
	_, err := time.Parse(http.TimeFormat, rr.Header().Get("Expires"))
	assert.NoError(t, err, "Expires must be an HTTP-date")

	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, `{"organisms":[]}`, rr.Body.String())

	// Conditional request with a matching ETag gets 304 and no body.
	req := httptest.NewRequest(http.MethodGet, "/organisms", nil)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotModified, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestCacheControlPrivateScope(t *testing.T) {
	mw := CacheControl(CacheControlOptions{MaxAge: 5 * time.Minute, Public: false})
	h := mw(okHandler("ok"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "private, max-age=300", rr.Header().Get("Cache-Control"))
}

func TestCacheControlSkipsErrors(t *testing.T) {
	mw := CacheControl(CacheControlOptions{MaxAge: time.Minute, Public: true, ETag: true})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, rr.Header().Get("Cache-Control"))
	assert.Empty(t, rr.Header().Get("ETag"))
}

func TestResponseCacheMiddleware(t *testing.T) {
	cfg := config.DefaultConfig().ResponseCache
	cfg.MaxAge = time.Minute
	rc, err := NewResponseCache(cfg, nil)
	require.NoError(t, err)
	defer rc.Close()

	var handlerCalls int
	h := rc.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":1}`))
	}))

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/organisms?page=1", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, `{"page":1}`, rr.Body.String())
		require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	}
	assert.Equal(t, 1, handlerCalls, "second and third hits must be served from cache")

	// A different query string is a different entry.
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/organisms?page=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, handlerCalls)

	// Non-GET requests bypass the cache entirely.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/organisms?page=1", nil))
	assert.Equal(t, 3, handlerCalls)

	require.NoError(t, rc.InvalidateAll())
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/organisms?page=1", nil))
	assert.Equal(t, 4, handlerCalls, "invalidation must force a refetch")
}

func TestHealthHandler(t *testing.T) {
	snapshot := types.Health{
		Status:    types.HealthStatusHealthy,
		Timestamp: time.Now(),
		Components: map[string]types.ComponentHealth{
			"cache": {Status: types.HealthStatusHealthy},
			"store": {Status: types.HealthStatusDisabled, Detail: "not configured"},
		},
	}
	h := HealthHandler(func() types.Health { return snapshot })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Status     string                     `json:"status"`
		Components map[string]json.RawMessage `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Len(t, body.Components, 2)
}

func TestHealthHandlerUnhealthy(t *testing.T) {
	h := HealthHandler(func() types.Health {
		return types.Health{Status: types.HealthStatusUnhealthy}
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
