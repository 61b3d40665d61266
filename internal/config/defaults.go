package config

import "time"

// DefaultConfig returns a configuration with sensible defaults. The rate
// limit and breaker thresholds match the values the museum API has run with
// in production.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			DefaultTTL: 5 * time.Minute,
			CollectionTTL: map[string]time.Duration{
				"organisms": 1 * time.Hour,
				"blogs":     30 * time.Minute,
				"videos":    30 * time.Minute,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			PerIP: RateLimitProfile{
				PerMinute: 120,
				PerHour:   10000,
			},
			PerUser: RateLimitProfile{
				PerMinute: 500,
				PerHour:   50000,
			},
			SweepInterval: 10 * time.Minute,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		},
		Shutdown: ShutdownConfig{
			DrainTimeout:    30 * time.Second,
			CallbackTimeout: 10 * time.Second,
			PollInterval:    1 * time.Second,
		},
		ResponseCache: ResponseCacheConfig{
			Enabled:      true,
			MaxAge:       5 * time.Minute,
			MaxSizeMB:    64,
			Shards:       256,
			MaxEntrySize: 1024 * 1024, // 1MB
		},
		Store: StoreConfig{
			Enabled:      false,
			Address:      "localhost:6379",
			Password:     SecretString{},
			DB:           0,
			KeyPrefix:    "museum:",
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolTimeout:  4 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			PublishInterval: 10 * time.Second,
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "zoomuseum",
				Tags:      []string{},
			},
		},
	}
}

// ForTesting returns a configuration suitable for unit tests: short windows,
// no external services, no background loops.
func ForTesting() *Config {
	cfg := DefaultConfig()
	cfg.Cache.DefaultTTL = 100 * time.Millisecond
	cfg.RateLimit.SweepInterval = 0
	cfg.CircuitBreaker.FailureThreshold = 2
	cfg.CircuitBreaker.RecoveryTimeout = 50 * time.Millisecond
	cfg.Shutdown.DrainTimeout = 500 * time.Millisecond
	cfg.Shutdown.CallbackTimeout = 100 * time.Millisecond
	cfg.Shutdown.PollInterval = 10 * time.Millisecond
	cfg.ResponseCache.Enabled = false
	cfg.Store.Enabled = false
	cfg.Metrics.Enabled = false
	return cfg
}

// ForTestingWithStore returns a test configuration pointed at a live redis
// instance, for integration tests.
func ForTestingWithStore(addr string) *Config {
	cfg := ForTesting()
	cfg.Store.Enabled = true
	cfg.Store.Address = addr
	cfg.Store.KeyPrefix = "museum-test:"
	return cfg
}
