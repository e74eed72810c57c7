package http

import (
	"net/http"
	"os"
	"time"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/logging"
	"atlas/internal/server/app"
	"atlas/internal/server/ports"
)

// APIHandler serves the plain-HTTP surface next to the JSON-RPC endpoint:
// task snapshots, health and the agent card.
type APIHandler struct {
	store         ports.TaskStore
	healthChecker *app.HealthChecker
	agentCardPath string
	logger        logging.Logger
}

func NewAPIHandler(store ports.TaskStore, healthChecker *app.HealthChecker, agentCardPath string, logger logging.Logger) *APIHandler {
	return &APIHandler{
		store:         store,
		healthChecker: healthChecker,
		agentCardPath: agentCardPath,
		logger:        logging.OrNop(logger),
	}
}

// HandleGetTask returns the current task snapshot.
func (h *APIHandler) HandleGetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	task, err := h.store.Get(r.Context(), taskID)
	if err != nil {
		if atlaserrors.IsNotFound(err) {
			h.writeJSONError(w, http.StatusNotFound, "Task not found", nil)
			return
		}
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to load task", err)
		return
	}

	h.writeJSON(w, http.StatusOK, task)
}

type healthResponse struct {
	Status     app.HealthStatus      `json:"status"`
	Timestamp  string                `json:"timestamp"`
	Components []app.ComponentHealth `json:"components"`
}

// HandleHealthCheck reports aggregate component health. Disabled components
// do not degrade the overall status.
func (h *APIHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	components := h.healthChecker.CheckAll(r.Context())

	overall := app.HealthStatusReady
	for _, component := range components {
		if component.Status == app.HealthStatusDegraded {
			overall = app.HealthStatusDegraded
			break
		}
	}

	status := http.StatusOK
	if overall == app.HealthStatusDegraded {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, healthResponse{
		Status:     overall,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	})
}

// HandleAgentCard serves the static capability descriptor.
func (h *APIHandler) HandleAgentCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	card, err := os.ReadFile(h.agentCardPath)
	if err != nil {
		h.writeJSONError(w, http.StatusNotFound, "Agent card not configured", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(card); err != nil {
		h.logger.Error("Failed to write agent card: %v", err)
	}
}
