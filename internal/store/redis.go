// Package store provides the redis-backed content document store. It is the
// unreliable external dependency the circuit breaker guards, and the pooled
// connection released as the last step of shutdown.
package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/config"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

// ContentStore stores content documents (organisms, blogs, videos) as JSON
// values in redis, keyed "<prefix><collection>:<id>".
type ContentStore struct {
	client *redis.Client
	config config.StoreConfig
	logger *slog.Logger

	mu            sync.Mutex
	lastError     error
	lastErrorTime time.Time

	connected atomic.Bool
	closed    atomic.Bool
}

// New creates a content store from config. The connection is verified lazily;
// a store created against an unreachable redis reports unhealthy rather than
// failing construction.
func New(cfg config.StoreConfig, logger *slog.Logger) *ContentStore {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	return &ContentStore{
		client: redis.NewClient(opts),
		config: cfg,
		logger: logger.With("component", "content-store"),
	}
}

// key builds the full redis key for a document.
func (s *ContentStore) key(collection, id string) string {
	return fmt.Sprintf("%s%s:%s", s.config.KeyPrefix, collection, id)
}

// Get fetches and decodes one document into dest.
func (s *ContentStore) Get(ctx context.Context, collection, id string, dest any) error {
	if s.closed.Load() {
		return types.ErrStopped
	}

	data, err := s.client.Get(ctx, s.key(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.ErrCacheMiss
		}
		s.recordError(err)
		return fmt.Errorf("store get %s/%s: %w", collection, id, err)
	}

	s.connected.Store(true)
	return json.Unmarshal(data, dest)
}

// Set encodes and stores one document.
func (s *ContentStore) Set(ctx context.Context, collection, id string, doc any) error {
	if s.closed.Load() {
		return types.ErrStopped
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store set %s/%s: encode: %w", collection, id, err)
	}

	if err := s.client.Set(ctx, s.key(collection, id), data, 0).Err(); err != nil {
		s.recordError(err)
		return fmt.Errorf("store set %s/%s: %w", collection, id, err)
	}

	s.connected.Store(true)
	return nil
}

// Delete removes one document. Deleting an absent document is a no-op.
func (s *ContentStore) Delete(ctx context.Context, collection, id string) error {
	if s.closed.Load() {
		return types.ErrStopped
	}

	if err := s.client.Del(ctx, s.key(collection, id)).Err(); err != nil {
		s.recordError(err)
		return fmt.Errorf("store delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Ping verifies connectivity for the health probe path that actively checks
// the store (not the cheap snapshot path).
func (s *ContentStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return types.ErrStopped
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.recordError(err)
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}

	s.connected.Store(true)
	return nil
}

// Health returns the last observed store health without touching the network.
func (s *ContentStore) Health() types.ComponentHealth {
	if s.closed.Load() {
		return types.ComponentHealth{Status: types.HealthStatusDisabled, Detail: "closed"}
	}

	if !s.connected.Load() {
		s.mu.Lock()
		defer s.mu.Unlock()
		detail := "not yet connected"
		if s.lastError != nil {
			detail = fmt.Sprintf("last error at %s: %v",
				s.lastErrorTime.Format(time.RFC3339), s.lastError)
		}
		return types.ComponentHealth{Status: types.HealthStatusUnhealthy, Detail: detail}
	}

	return types.ComponentHealth{Status: types.HealthStatusHealthy}
}

// Close releases the connection pool. Safe to call multiple times.
func (s *ContentStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.logger.Info("closing content store connection pool")
	return s.client.Close()
}

func (s *ContentStore) recordError(err error) {
	s.connected.Store(false)
	s.mu.Lock()
	s.lastError = err
	s.lastErrorTime = time.Now()
	s.mu.Unlock()
}
