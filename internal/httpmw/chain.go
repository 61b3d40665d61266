// Package httpmw provides the HTTP middleware stages composing the
// resilience core around route handlers: drain rejection, rate limiting,
// response caching, cache-control headers and the health probe.
package httpmw

import "net/http"

// Middleware is one request-processing stage. Stages are composed into an
// explicit chain at startup; each receives the request and the next handler
// as its "continue" capability.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so that the first argument is the outermost
// stage: Chain(a, b)(h) serves a(b(h)).
func Chain(mw ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// writeJSON writes a small JSON body with the given status.
func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
