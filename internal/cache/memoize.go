package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Memoizer caches the result of an expensive read operation under a key
// derived from the operation's name and arguments. A cache hit short-circuits
// the operation entirely; concurrent misses for the same key execute it once.
type Memoizer struct {
	cache *TTLCache
	sf    singleflight.Group
}

// NewMemoizer creates a memoizer backed by the given cache.
func NewMemoizer(cache *TTLCache) *Memoizer {
	return &Memoizer{cache: cache}
}

// Key derives a deterministic cache key from an operation name and its
// arguments, e.g. Key("organisms", "list", 1, 50) -> "organisms:list:1:50".
func Key(op string, args ...any) string {
	if len(args) == 0 {
		return op
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, op)
	for _, arg := range args {
		parts = append(parts, fmt.Sprint(arg))
	}
	return strings.Join(parts, ":")
}

// Do returns the cached value for key, or executes fn once, caches its result
// for ttl (cache default if non-positive) and returns it. Errors from fn are
// returned without populating the cache. The bool reports whether the value
// was served from the cache without running the operation.
func (m *Memoizer) Do(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (any, error)) (any, bool, error) {
	if v, ok := m.cache.Get(key); ok {
		return v, true, nil
	}

	type flightResult struct {
		value  any
		cached bool
	}

	r, err, _ := m.sf.Do(key, func() (any, error) {
		// Another flight may have populated the cache between the miss
		// above and acquiring the flight. peek keeps the cache's hit/miss
		// counters aligned with the lookup already counted above.
		if v, ok := m.cache.peek(key); ok {
			return flightResult{value: v, cached: true}, nil
		}

		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		m.cache.Set(key, v, ttl)
		return flightResult{value: v}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := r.(flightResult)
	return res.value, res.cached, nil
}
