package httpmw

import (
	"net/http"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/metrics"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/shutdown"
)

var drainBody = []byte(`{"status":"shutting_down","detail":"Server is shutting down. Please retry shortly."}`)

// Drain brackets every request with the coordinator's Enter/Exit and rejects
// requests arriving after draining began with 503.
func Drain(coord *shutdown.Coordinator, rec metrics.Recorder) Middleware {
	if rec == nil {
		rec = metrics.NewNoOpRecorder()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := coord.Enter(); err != nil {
				rec.RecordShutdownRejection()
				writeJSON(w, http.StatusServiceUnavailable, drainBody)
				return
			}
			defer coord.Exit()

			next.ServeHTTP(w, r)
		})
	}
}
