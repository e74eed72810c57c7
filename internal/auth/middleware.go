package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// ownerKey is the context key used internally by the middleware to store the
// authenticated caller's key name.
type ownerKey struct{}

// Middleware validates the Authorization header against store and injects the
// caller identity into the request context. Public paths pass through
// untouched, as does everything when no keys are configured.
func Middleware(store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			record, err := store.Verify(extractBearerToken(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}

			ctx := context.WithValue(r.Context(), ownerKey{}, record.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken parses the Authorization header. A missing header or a
// non-Bearer scheme yields the empty token, which Verify rejects when auth is
// enabled.
func extractBearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// OwnerFromContext retrieves the caller identity set by the middleware.
func OwnerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if owner, ok := ctx.Value(ownerKey{}).(string); ok {
		return owner
	}
	return ""
}

func isPublicPath(path string) bool {
	switch {
	case path == "/health", path == "/health/":
		return true
	case strings.HasPrefix(path, "/.well-known/"):
		return true
	}
	return false
}
