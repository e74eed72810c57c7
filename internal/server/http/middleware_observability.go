package http

import (
	"context"
	"net/http"
	"time"

	"atlas/internal/logging"
)

// RequestMetrics receives per-request instrumentation callbacks.
type RequestMetrics interface {
	RecordHTTPRequest(ctx context.Context, method, route string, status int, latency time.Duration, bytes int64)
}

// ObservabilityMiddleware instruments HTTP requests with metrics and optional
// latency logging.
func ObservabilityMiddleware(metrics RequestMetrics, latencyLogger logging.Logger) func(http.Handler) http.Handler {
	hasLatencyLogger := latencyLogger != nil
	return func(next http.Handler) http.Handler {
		if metrics == nil && !hasLatencyLogger {
			return next
		}
		latencyLogger = logging.OrNop(latencyLogger)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec, wrapped := wrapResponseWriter(w)
			start := time.Now()
			initialRoute := canonicalPath(r.URL.Path)

			next.ServeHTTP(wrapped, r)

			route := routeFromContext(r.Context())
			if route == "" {
				route = initialRoute
			}
			latency := time.Since(start)
			if metrics != nil {
				metrics.RecordHTTPRequest(r.Context(), r.Method, route, rec.status, latency, rec.bytes)
			}
			if hasLatencyLogger {
				latencyLogger.Info(
					"route=%s method=%s status=%d latency_ms=%.2f bytes=%d",
					route,
					r.Method,
					rec.status,
					float64(latency.Microseconds())/1000.0,
					rec.bytes,
				)
			}
		})
	}
}
