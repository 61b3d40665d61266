package zoomuseum

import (
	"log/slog"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/metrics"
)

// CoreOptions holds construction-time overrides applied by Option funcs.
type CoreOptions struct {
	Logger       *slog.Logger
	Publisher    metrics.Publisher
	UserHeader   string
	TrustXFF     bool
	DisableStore bool
}

// Option customizes a Core at construction time.
type Option func(*CoreOptions)

// WithLogger sets the structured logger used by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *CoreOptions) {
		o.Logger = logger
	}
}

// WithPublisher sets the metrics publisher, replacing the DataDog client the
// configuration would otherwise select.
func WithPublisher(p metrics.Publisher) Option {
	return func(o *CoreOptions) {
		o.Publisher = p
	}
}

// WithUserHeader enables per-user rate limiting keyed by the named request
// header. Requests without the header fall back to their client IP.
func WithUserHeader(header string) Option {
	return func(o *CoreOptions) {
		o.UserHeader = header
	}
}

// WithTrustedProxies makes the rate limiter honor X-Forwarded-For. Only set
// this behind a proxy that overwrites the header.
func WithTrustedProxies() Option {
	return func(o *CoreOptions) {
		o.TrustXFF = true
	}
}

// WithoutStore disables the content store regardless of configuration.
func WithoutStore() Option {
	return func(o *CoreOptions) {
		o.DisableStore = true
	}
}
