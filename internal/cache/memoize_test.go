package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args []any
		want string
	}{
		{"no args", "organisms:list", nil, "organisms:list"},
		{"mixed args", "organisms:list", []any{1, 50}, "organisms:list:1:50"},
		{"string args", "blogs:detail", []any{"slug"}, "blogs:detail:slug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.op, tt.args...); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMemoizerHitShortCircuits(t *testing.T) {
	c := NewTTLCache(1*time.Minute, nil)
	m := NewMemoizer(c)
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		return "expensive", nil
	}

	v, cached, err := m.Do(ctx, "organisms:list:1:50", 0, fetch)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if v.(string) != "expensive" {
		t.Errorf("Do() = %v, want expensive", v)
	}
	if cached {
		t.Error("first Do() reported cached, want fresh execution")
	}

	// Second call must be served from cache without invoking fetch.
	_, cached, err = m.Do(ctx, "organisms:list:1:50", 0, fetch)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !cached {
		t.Error("second Do() reported fresh execution, want cached")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("operation executed %d times, want 1", got)
	}

	// The cache's own counters see exactly one miss and one hit.
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("cache counters = %d hits / %d misses, want 1/1", s.Hits, s.Misses)
	}
}

func TestMemoizerErrorNotCached(t *testing.T) {
	c := NewTTLCache(1*time.Minute, nil)
	m := NewMemoizer(c)
	ctx := context.Background()

	wantErr := errors.New("store down")
	var calls atomic.Int32

	_, _, err := m.Do(ctx, "k", 0, func(context.Context) (any, error) {
		calls.Add(1)
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() error = %v, want %v", err, wantErr)
	}

	// The failure must not have been cached.
	v, _, err := m.Do(ctx, "k", 0, func(context.Context) (any, error) {
		calls.Add(1)
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if v.(string) != "recovered" {
		t.Errorf("Do() = %v, want recovered", v)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("operation executed %d times, want 2", got)
	}
}

func TestMemoizerConcurrentSingleExecution(t *testing.T) {
	c := NewTTLCache(1*time.Minute, nil)
	m := NewMemoizer(c)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "once", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := m.Do(ctx, "hot-key", 0, fetch)
			if err != nil {
				t.Errorf("Do() error = %v", err)
				return
			}
			if v.(string) != "once" {
				t.Errorf("Do() = %v, want once", v)
			}
		}()
	}

	// Give the goroutines a moment to pile onto the flight, then release it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("operation executed %d times under concurrency, want 1", got)
	}
}
