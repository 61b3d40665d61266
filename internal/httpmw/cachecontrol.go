package httpmw

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"time"
)

// CacheControlOptions controls the headers added to cacheable endpoints.
type CacheControlOptions struct {
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration
	Public               bool
	ETag                 bool
}

// CacheControl adds HTTP cache headers to successful responses:
// Cache-Control, Vary and Expires, plus an ETag content hash with
// If-None-Match handling when enabled. Non-200 responses pass through
// untouched.
func CacheControl(opts CacheControlOptions) Middleware {
	scope := "private"
	if opts.Public {
		scope = "public"
	}
	cacheControl := fmt.Sprintf("%s, max-age=%d", scope, int(opts.MaxAge.Seconds()))
	if opts.StaleWhileRevalidate > 0 {
		cacheControl += fmt.Sprintf(", stale-while-revalidate=%d", int(opts.StaleWhileRevalidate.Seconds()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bw := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
			next.ServeHTTP(bw, r)

			copyHeader(w.Header(), bw.header)

			if bw.status == http.StatusOK {
				w.Header().Set("Cache-Control", cacheControl)
				w.Header().Set("Vary", "Accept-Encoding")
				w.Header().Set("Expires", time.Now().UTC().Add(opts.MaxAge).Format(http.TimeFormat))

				if opts.ETag {
					etag := fmt.Sprintf(`"%x"`, md5.Sum(bw.body.Bytes()))
					w.Header().Set("ETag", etag)
					if r.Header.Get("If-None-Match") == etag {
						w.WriteHeader(http.StatusNotModified)
						return
					}
				}
			}

			w.WriteHeader(bw.status)
			_, _ = w.Write(bw.body.Bytes())
		})
	}
}

// bufferedWriter captures a response so headers derived from the full body
// (ETag) can be set before anything is sent.
type bufferedWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(status int) { w.status = status }

func (w *bufferedWriter) Write(p []byte) (int, error) { return w.body.Write(p) }

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
