package http

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"atlas/internal/logging"
)

type contextKey string

const canonicalRouteContextKey contextKey = "canonicalRoute"

// annotateRequestRoute records the canonical route pattern on the request so
// the observability middleware reports "/tasks/:task_id" instead of raw ids.
func annotateRequestRoute(r *http.Request, route string) {
	if r == nil || route == "" {
		return
	}
	ctx := context.WithValue(r.Context(), canonicalRouteContextKey, route)
	*r = *r.WithContext(ctx)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if route, ok := ctx.Value(canonicalRouteContextKey).(string); ok {
		return route
	}
	return ""
}

var taskIDSegment = regexp.MustCompile(`^task-[0-9a-fA-F-]+$`)

// canonicalPath collapses task id segments so unannotated paths still produce
// a bounded label set.
func canonicalPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	segments := strings.Split(trimmed, "/")
	filtered := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if taskIDSegment.MatchString(segment) {
			filtered = append(filtered, ":task_id")
			continue
		}
		filtered = append(filtered, segment)
	}
	return "/" + strings.Join(filtered, "/")
}

func routeHandler(route string, handler http.Handler) http.Handler {
	if route == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		annotateRequestRoute(r, route)
		handler.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles CORS headers for browser clients.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := allowAll
			for _, allowedOrigin := range allowedOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}

			if origin != "" && allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs incoming requests
func LoggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Info("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	}
}
