package types

import "time"

// HealthStatus represents the overall health state.
type HealthStatus int

const (
	// HealthStatusHealthy indicates all components operating normally.
	HealthStatusHealthy HealthStatus = iota + 1
	// HealthStatusDegraded indicates partial functionality (e.g., the content
	// store is unreachable but cached reads still work).
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates critical failure.
	HealthStatusUnhealthy
	// HealthStatusDisabled indicates a component that is intentionally not
	// running in this configuration.
	HealthStatusDisabled
)

// String returns the string representation of health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	case HealthStatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its string form for probe responses.
func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ComponentHealth describes one component in the health probe response.
type ComponentHealth struct {
	Status HealthStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// Health is the probe payload: an aggregate status plus per-component
// statuses. It is assembled from cheap snapshots and must never touch rate
// limiter or circuit breaker bookkeeping.
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	UptimeSecs float64                    `json:"uptime_seconds"`
	Components map[string]ComponentHealth `json:"components"`
}

// Aggregate recomputes the overall status from the component statuses: any
// unhealthy or degraded component degrades the whole; disabled components are
// ignored.
func (h *Health) Aggregate() {
	h.Status = HealthStatusHealthy
	for _, c := range h.Components {
		switch c.Status {
		case HealthStatusUnhealthy, HealthStatusDegraded:
			h.Status = HealthStatusDegraded
		case HealthStatusHealthy, HealthStatusDisabled:
		}
	}
}
