package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Load loads configuration from a JSON file.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv loads configuration from a JSON file and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

//nolint:gocyclo // Environment variable parsing requires many conditional checks
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZOOMUSEUM_CACHE_DEFAULT_TTL"); v != "" {
		cfg.Cache.DefaultTTL = parseDuration(v, cfg.Cache.DefaultTTL)
	}

	if v := os.Getenv("ZOOMUSEUM_RATE_LIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("ZOOMUSEUM_RATE_LIMIT_IP_PER_MINUTE"); v != "" {
		cfg.RateLimit.PerIP.PerMinute = parseInt(v, cfg.RateLimit.PerIP.PerMinute)
	}
	if v := os.Getenv("ZOOMUSEUM_RATE_LIMIT_IP_PER_HOUR"); v != "" {
		cfg.RateLimit.PerIP.PerHour = parseInt(v, cfg.RateLimit.PerIP.PerHour)
	}
	if v := os.Getenv("ZOOMUSEUM_RATE_LIMIT_USER_PER_MINUTE"); v != "" {
		cfg.RateLimit.PerUser.PerMinute = parseInt(v, cfg.RateLimit.PerUser.PerMinute)
	}
	if v := os.Getenv("ZOOMUSEUM_RATE_LIMIT_USER_PER_HOUR"); v != "" {
		cfg.RateLimit.PerUser.PerHour = parseInt(v, cfg.RateLimit.PerUser.PerHour)
	}
	if v := os.Getenv("ZOOMUSEUM_RATE_LIMIT_SWEEP_INTERVAL"); v != "" {
		cfg.RateLimit.SweepInterval = parseDuration(v, cfg.RateLimit.SweepInterval)
	}

	if v := os.Getenv("ZOOMUSEUM_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("ZOOMUSEUM_CIRCUIT_BREAKER_FAILURE_THRESHOLD"); v != "" {
		cfg.CircuitBreaker.FailureThreshold = parseInt(v, cfg.CircuitBreaker.FailureThreshold)
	}
	if v := os.Getenv("ZOOMUSEUM_CIRCUIT_BREAKER_RECOVERY_TIMEOUT"); v != "" {
		cfg.CircuitBreaker.RecoveryTimeout = parseDuration(v, cfg.CircuitBreaker.RecoveryTimeout)
	}

	if v := os.Getenv("ZOOMUSEUM_SHUTDOWN_DRAIN_TIMEOUT"); v != "" {
		cfg.Shutdown.DrainTimeout = parseDuration(v, cfg.Shutdown.DrainTimeout)
	}
	if v := os.Getenv("ZOOMUSEUM_SHUTDOWN_CALLBACK_TIMEOUT"); v != "" {
		cfg.Shutdown.CallbackTimeout = parseDuration(v, cfg.Shutdown.CallbackTimeout)
	}

	if v := os.Getenv("ZOOMUSEUM_RESPONSE_CACHE_ENABLED"); v != "" {
		cfg.ResponseCache.Enabled = parseBool(v)
	}
	if v := os.Getenv("ZOOMUSEUM_RESPONSE_CACHE_MAX_AGE"); v != "" {
		cfg.ResponseCache.MaxAge = parseDuration(v, cfg.ResponseCache.MaxAge)
	}

	if v := os.Getenv("ZOOMUSEUM_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = parseBool(v)
	}
	if v := os.Getenv("ZOOMUSEUM_STORE_ADDRESS"); v != "" {
		cfg.Store.Address = v
	}
	if v := os.Getenv("ZOOMUSEUM_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = NewSecretString(v)
	}
	if v := os.Getenv("ZOOMUSEUM_STORE_DB"); v != "" {
		cfg.Store.DB = parseInt(v, cfg.Store.DB)
	}
	if v := os.Getenv("ZOOMUSEUM_STORE_KEY_PREFIX"); v != "" {
		cfg.Store.KeyPrefix = v
	}
	if v := os.Getenv("ZOOMUSEUM_STORE_ENABLE_TLS"); v != "" {
		cfg.Store.EnableTLS = parseBool(v)
	}

	if v := os.Getenv("ZOOMUSEUM_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}

	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.DataDog.Enabled = true
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		cfg.Metrics.DataDog.Port = parseInt(v, cfg.Metrics.DataDog.Port)
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}

	if v := os.Getenv("ZOOMUSEUM_DATADOG_ENABLED"); v != "" {
		if os.Getenv("DD_AGENT_HOST") == "" {
			cfg.Metrics.DataDog.Enabled = parseBool(v)
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.defaultTTL must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.PerIP.PerMinute <= 0 || c.RateLimit.PerIP.PerHour <= 0 {
			return fmt.Errorf("rateLimit.perIP thresholds must be positive")
		}
		if c.RateLimit.PerUser.PerMinute <= 0 || c.RateLimit.PerUser.PerHour <= 0 {
			return fmt.Errorf("rateLimit.perUser thresholds must be positive")
		}
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be positive")
		}
		if c.CircuitBreaker.RecoveryTimeout <= 0 {
			return fmt.Errorf("circuitBreaker.recoveryTimeout must be positive")
		}
	}

	if c.Shutdown.DrainTimeout <= 0 {
		return fmt.Errorf("shutdown.drainTimeout must be positive")
	}
	if c.Shutdown.CallbackTimeout <= 0 {
		return fmt.Errorf("shutdown.callbackTimeout must be positive")
	}
	if c.Shutdown.PollInterval <= 0 {
		return fmt.Errorf("shutdown.pollInterval must be positive")
	}

	if c.ResponseCache.Enabled {
		if c.ResponseCache.MaxSizeMB <= 0 {
			return fmt.Errorf("responseCache.maxSizeMB must be positive")
		}
		if c.ResponseCache.Shards <= 0 || (c.ResponseCache.Shards&(c.ResponseCache.Shards-1)) != 0 {
			return fmt.Errorf("responseCache.shards must be a positive power of 2")
		}
	}

	if c.Store.Enabled {
		if c.Store.Address == "" {
			return fmt.Errorf("store.address is required when the store is enabled")
		}
		if c.Store.PoolSize <= 0 {
			return fmt.Errorf("store.poolSize must be positive")
		}
	}

	return nil
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.ToLower(s))
	return err == nil && v
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	// Try plain seconds first (e.g. "30"), then Go duration syntax ("30s").
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return v
}
