package httpmw

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/metrics"
	"github.com/sbeszoomuseum/SBESZooMuseum/internal/ratelimit"
)

// KeyFunc extracts the caller identity a rate-limit profile keys on.
type KeyFunc func(r *http.Request) string

// ClientIPKeyFunc identifies callers by IP. When trustXFF is set, the first
// address in X-Forwarded-For wins (the original client behind proxies);
// otherwise RemoteAddr is used.
func ClientIPKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// UserKeyFunc identifies authenticated callers by the given header, falling
// back to the client IP for anonymous requests.
func UserKeyFunc(header string, trustXFF bool) KeyFunc {
	byIP := ClientIPKeyFunc(trustXFF)
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
		return byIP(r)
	}
}

// RateLimit applies one limiting profile. Rejections are 429 with a
// Retry-After header in integer seconds and a body naming the policy.
func RateLimit(limiter *ratelimit.Limiter, profile ratelimit.Profile, keyFn KeyFunc, rec metrics.Recorder) Middleware {
	if keyFn == nil {
		keyFn = ClientIPKeyFunc(false)
	}
	if rec == nil {
		rec = metrics.NewNoOpRecorder()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := profile.Check(limiter, keyFn(r))
			if !d.Allowed {
				rec.RecordRateLimitDenied(profile.Name, d.Window)

				retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				body := fmt.Sprintf(
					`{"status":"rate_limited","policy":%q,"window":%q,"retry_after_seconds":%d}`,
					profile.Name, d.Window, retryAfter,
				)
				writeJSON(w, http.StatusTooManyRequests, []byte(body))
				return
			}

			rec.RecordRateLimitAllowed(profile.Name)
			next.ServeHTTP(w, r)
		})
	}
}
