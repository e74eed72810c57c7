package http

import (
	"net/http"
	"strings"
	"time"

	"atlas/internal/auth"
	"atlas/internal/logging"
	"atlas/internal/rpc"
	"atlas/internal/server/app"
	"atlas/internal/server/ports"
)

// RouterConfig carries the wired components the HTTP surface is built from.
type RouterConfig struct {
	Dispatcher     *rpc.Dispatcher
	Store          ports.TaskStore
	HealthChecker  *app.HealthChecker
	AuthStore      *auth.Store
	AgentCardPath  string
	AllowedOrigins []string
	StreamInterval time.Duration
	Metrics        RequestMetrics
}

// NewRouter creates the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := logging.NewComponentLogger("Router")
	latencyLogger := logging.NewComponentLogger("HTTP")

	rpcHandler := NewRPCHandler(cfg.Dispatcher, logging.NewComponentLogger("RPCHandler"))
	apiHandler := NewAPIHandler(cfg.Store, cfg.HealthChecker, cfg.AgentCardPath, logging.NewComponentLogger("APIHandler"))
	sseHandler := NewSSEHandler(cfg.Store, cfg.StreamInterval, logging.NewComponentLogger("SSEHandler"))

	mux := http.NewServeMux()

	// JSON-RPC endpoint, served at the root and at /rpc for clients that
	// prefer an explicit path.
	rpcRoute := routeHandler("/rpc", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/rpc" {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		rpcHandler.HandleRPC(w, r)
	}))
	mux.Handle("/", rpcRoute)
	mux.Handle("/rpc", rpcRoute)

	// Task endpoints
	mux.Handle("/tasks/", routeHandler("/tasks/:task_id", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/tasks/")

		// Handle /tasks/:id/stream
		if taskID, ok := strings.CutSuffix(path, "/stream"); ok && !strings.Contains(taskID, "/") {
			annotateRequestRoute(r, "/tasks/:task_id/stream")
			sseHandler.HandleTaskStream(w, r, taskID)
			return
		}

		// Handle /tasks/:id
		if path != "" && !strings.Contains(path, "/") {
			apiHandler.HandleGetTask(w, r, path)
			return
		}

		writeError(w, http.StatusNotFound, "Not found")
	})))

	// Health check endpoint
	mux.Handle("/health", routeHandler("/health", http.HandlerFunc(apiHandler.HandleHealthCheck)))

	// A2A discovery document
	mux.Handle("/.well-known/agent-card.json", routeHandler("/.well-known/agent-card.json", http.HandlerFunc(apiHandler.HandleAgentCard)))

	// Apply middleware
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.AuthStore)(handler)
	handler = ObservabilityMiddleware(cfg.Metrics, latencyLogger)(handler)
	handler = LoggingMiddleware(logger)(handler)
	handler = CORSMiddleware(cfg.AllowedOrigins)(handler)

	return handler
}
