// Package cache provides the in-process TTL cache and the memoization
// wrapper built on top of it.
package cache

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// entry is the stored form of one cached value. expiresAt is always
// createdAt + ttl; a read past expiresAt treats the entry as absent and
// purges it.
type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// TTLCache is a concurrency-safe key/value store with per-entry expiry and
// substring invalidation. Expiry is checked lazily at read time; there is no
// background sweep, so a stale entry may occupy memory until its key is next
// read or explicitly invalidated.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]entry

	defaultTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	purges atomic.Int64
}

// NewTTLCache creates a cache whose entries default to defaultTTL when Set is
// called without an explicit TTL.
func NewTTLCache(defaultTTL time.Duration, logger *slog.Logger) *TTLCache {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}

	return &TTLCache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		logger:     logger.With("component", "ttl-cache"),
		now:        time.Now,
	}
}

// Get returns the stored value unless its expiry has passed, in which case
// the entry is purged and the key reported absent.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.mu.Unlock()
		c.purges.Add(1)
		c.misses.Add(1)
		return nil, false
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Set inserts or replaces the entry for key. A non-positive ttl falls back to
// the cache's default. Set always succeeds.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()

	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	c.mu.Unlock()

	c.sets.Add(1)
	c.logger.Debug("cache set", "key", key, "ttl", ttl)
}

// Invalidate removes the entry for key if present. Calling it for an absent
// key is a no-op.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok {
		c.logger.Debug("cache invalidated", "key", key)
	}
}

// InvalidatePattern removes every entry whose key contains substr and returns
// the number removed. It is used to evict an entire logical collection (e.g.
// all cached pages of one resource) after a write.
func (c *TTLCache) InvalidatePattern(substr string) int {
	c.mu.Lock()
	var removed int
	for key := range c.entries {
		if strings.Contains(key, substr) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("cache invalidated by pattern", "pattern", substr, "deleted", removed)
	}
	return removed
}

// Len returns the number of entries currently held, including any that have
// expired but not yet been purged.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// DefaultTTL returns the TTL applied when Set is called without one.
func (c *TTLCache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Stats returns cache counters.
func (c *TTLCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Purges:  c.purges.Load(),
		Entries: c.Len(),
	}
}

// HitRatio returns the cache hit ratio.
func (c *TTLCache) HitRatio() float64 {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// peek returns the live value for key without touching the hit/miss counters
// or purging. Used where a lookup has already been counted.
func (c *TTLCache) peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// contains reports whether key is physically present, expired or not.
// Test hook for verifying lazy purge behavior.
func (c *TTLCache) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Stats contains cache counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Purges  int64
	Entries int
}
