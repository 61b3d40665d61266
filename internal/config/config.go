// Package config provides configuration management for the resilience core.
package config

import (
	"time"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

// SecretString is a string type that redacts its value when marshaled to JSON.
type SecretString = types.SecretString

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Config contains all configuration for the resilience core.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Cache          CacheConfig          `json:"cache"`
	RateLimit      RateLimitConfig      `json:"rateLimit"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker"`
	Shutdown       ShutdownConfig       `json:"shutdown"`
	ResponseCache  ResponseCacheConfig  `json:"responseCache"`
	Store          StoreConfig          `json:"store"`
	Metrics        MetricsConfig        `json:"metrics"`
}

// CacheConfig contains configuration for the TTL caches.
type CacheConfig struct {
	DefaultTTL    time.Duration            `json:"defaultTTL"`
	CollectionTTL map[string]time.Duration `json:"collectionTTL"`
}

// TTLFor returns the TTL configured for a named collection cache, falling
// back to the default.
func (c CacheConfig) TTLFor(collection string) time.Duration {
	if ttl, ok := c.CollectionTTL[collection]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}

// RateLimitProfile holds the thresholds for one limiting policy.
type RateLimitProfile struct {
	PerMinute int `json:"perMinute"`
	PerHour   int `json:"perHour"`
}

// RateLimitConfig contains configuration for the sliding window limiter.
type RateLimitConfig struct {
	PerIP         RateLimitProfile `json:"perIP"`
	PerUser       RateLimitProfile `json:"perUser"`
	SweepInterval time.Duration    `json:"sweepInterval"`
	Enabled       bool             `json:"enabled"`
}

// CircuitBreakerConfig contains configuration for protected external calls.
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failureThreshold"`
	RecoveryTimeout  time.Duration `json:"recoveryTimeout"`
	Enabled          bool          `json:"enabled"`
}

// ShutdownConfig contains configuration for the drain coordinator.
type ShutdownConfig struct {
	DrainTimeout    time.Duration `json:"drainTimeout"`
	CallbackTimeout time.Duration `json:"callbackTimeout"`
	PollInterval    time.Duration `json:"pollInterval"`
}

// ResponseCacheConfig contains configuration for the HTTP response cache.
type ResponseCacheConfig struct {
	MaxAge       time.Duration `json:"maxAge"`
	MaxSizeMB    int           `json:"maxSizeMB"`
	Shards       int           `json:"shards"`
	MaxEntrySize int           `json:"maxEntrySize"`
	Enabled      bool          `json:"enabled"`
}

// StoreConfig contains configuration for the redis content store.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type StoreConfig struct {
	DialTimeout   time.Duration `json:"dialTimeout"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
	PoolTimeout   time.Duration `json:"poolTimeout"`
	Password      SecretString  `json:"password"`
	Address       string        `json:"address"`
	KeyPrefix     string        `json:"keyPrefix"`
	DB            int           `json:"db"`
	PoolSize      int           `json:"poolSize"`
	MinIdleConns  int           `json:"minIdleConns"`
	Enabled       bool          `json:"enabled"`
	EnableTLS     bool          `json:"enableTLS"`
	TLSSkipVerify bool          `json:"tlsSkipVerify"`
}

// DataDogConfig contains configuration for the DataDog StatsD publisher.
type DataDogConfig struct {
	AgentHost string   `json:"agentHost"`
	Prefix    string   `json:"prefix"`
	Tags      []string `json:"tags"`
	Port      int      `json:"port"`
	Enabled   bool     `json:"enabled"`
}

// MetricsConfig contains configuration for metrics collection.
type MetricsConfig struct {
	DataDog         DataDogConfig `json:"dataDog"`
	PublishInterval time.Duration `json:"publishInterval"`
	Enabled         bool          `json:"enabled"`
}
