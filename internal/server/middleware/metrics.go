package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder receives one observation per served request. Implemented by
// the telemetry collector.
type HTTPRecorder interface {
	ObserveHTTP(method, path string, statusCode int, duration time.Duration)
}

// Metrics returns an HTTP middleware that records request count and latency
// per route. The chi route pattern is used as the path label so parameterized
// routes ("/api/v1/approval/{approvalId}") stay a single series.
func Metrics(rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			rec.ObserveHTTP(r.Method, path, ww.status, time.Since(start))
		})
	}
}
