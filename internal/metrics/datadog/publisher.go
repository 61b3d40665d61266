// Package datadog provides a DataDog StatsD metrics publisher.
package datadog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/config"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/metrics"
)

// Publisher implements metrics.Publisher using the DataDog StatsD client.
type Publisher struct {
	client   *statsd.Client
	logger   *slog.Logger
	baseTags []string
}

// NewPublisher creates a DataDog publisher from config. If DataDog is not
// enabled, returns a NoOpPublisher instead.
func NewPublisher(cfg *config.DataDogConfig, logger *slog.Logger) (metrics.Publisher, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpPublisher(), nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	addr := fmt.Sprintf("%s:%d", cfg.AgentHost, cfg.Port)

	client, err := statsd.New(addr,
		statsd.WithNamespace(cfg.Prefix+"."),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}

	logger.Info("DataDog publisher initialized",
		"address", addr,
		"prefix", cfg.Prefix,
		"tags", cfg.Tags,
	)

	return &Publisher{
		client:   client,
		baseTags: cfg.Tags,
		logger:   logger.With("component", "datadog"),
	}, nil
}

// Gauge records a gauge metric (value at a point in time).
func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	if err := p.client.Gauge(name, value, tags, 1); err != nil {
		p.logger.Debug("failed to publish gauge", "metric", name, "error", err)
	}
}

// Incr increments a counter metric.
func (p *Publisher) Incr(name string, tags ...string) {
	if err := p.client.Incr(name, tags, 1); err != nil {
		p.logger.Debug("failed to publish incr", "metric", name, "error", err)
	}
}

// Count adds value to a counter metric.
func (p *Publisher) Count(name string, value int64, tags ...string) {
	if err := p.client.Count(name, value, tags, 1); err != nil {
		p.logger.Debug("failed to publish count", "metric", name, "error", err)
	}
}

// Timing records a duration metric.
func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	if err := p.client.Timing(name, duration, tags, 1); err != nil {
		p.logger.Debug("failed to publish timing", "metric", name, "error", err)
	}
}

// Close flushes and closes the StatsD client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ metrics.Publisher = (*Publisher)(nil)
