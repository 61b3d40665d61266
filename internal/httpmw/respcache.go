package httpmw

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/allegro/bigcache/v3"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/config"
)

// cachedResponse is the stored form of one whole response.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// ResponseCache serves hot cacheable endpoints from a byte-oriented
// whole-response cache. Entries expire together on the configured max age
// (bigcache's life window); per-entry freshness beyond that is the TTL
// cache's job, not this one's.
type ResponseCache struct {
	cache  *bigcache.BigCache
	logger *slog.Logger
}

// NewResponseCache creates a response cache from config.
func NewResponseCache(cfg config.ResponseCacheConfig, logger *slog.Logger) (*ResponseCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bcConfig := bigcache.Config{
		Shards:             cfg.Shards,
		LifeWindow:         cfg.MaxAge,
		CleanWindow:        cfg.MaxAge / 2,
		MaxEntriesInWindow: 1000 * 10 * 60,
		MaxEntrySize:       cfg.MaxEntrySize,
		HardMaxCacheSize:   cfg.MaxSizeMB,
		Verbose:            false,
	}

	bc, err := bigcache.New(context.Background(), bcConfig)
	if err != nil {
		return nil, err
	}

	return &ResponseCache{
		cache:  bc,
		logger: logger.With("component", "response-cache"),
	}, nil
}

// Middleware caches successful GET responses keyed by method and URL and
// replays them until they age out.
func (rc *ResponseCache) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Method + " " + r.URL.RequestURI()

			if data, err := rc.cache.Get(key); err == nil {
				var cached cachedResponse
				if err := json.Unmarshal(data, &cached); err == nil {
					copyHeader(w.Header(), cached.Header)
					w.Header().Set("X-Cache", "HIT")
					w.WriteHeader(cached.Status)
					_, _ = w.Write(cached.Body)
					return
				}
				// Corrupt entry: drop it and fall through to the handler.
				_ = rc.cache.Delete(key)
			}

			bw := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
			next.ServeHTTP(bw, r)

			if bw.status == http.StatusOK {
				data, err := json.Marshal(cachedResponse{
					Status: bw.status,
					Header: bw.header,
					Body:   bw.body.Bytes(),
				})
				if err == nil {
					if err := rc.cache.Set(key, data); err != nil {
						rc.logger.Debug("failed to cache response", "key", key, "error", err)
					}
				}
			}

			copyHeader(w.Header(), bw.header)
			w.WriteHeader(bw.status)
			_, _ = w.Write(bw.body.Bytes())
		})
	}
}

// InvalidateAll drops every cached response, used after content writes.
func (rc *ResponseCache) InvalidateAll() error {
	return rc.cache.Reset()
}

// Len returns the number of cached responses.
func (rc *ResponseCache) Len() int {
	return rc.cache.Len()
}

// Close releases the cache's resources.
func (rc *ResponseCache) Close() error {
	return rc.cache.Close()
}
