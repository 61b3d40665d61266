package httpmw

import (
	"encoding/json"
	"net/http"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

// HealthHandler serves the health probe from a snapshot function. The probe
// is polled frequently, so snapshotFn must be cheap and must not touch rate
// limiter or breaker bookkeeping.
func HealthHandler(snapshotFn func() types.Health) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := snapshotFn()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if h.Status == types.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(h)
	})
}
