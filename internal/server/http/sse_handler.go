package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/logging"
	"atlas/internal/server/ports"
)

// DefaultStreamInterval is the cadence between status snapshots on an open
// stream.
const DefaultStreamInterval = time.Second

// SSEHandler streams task status snapshots over Server-Sent Events.
type SSEHandler struct {
	store    ports.TaskStore
	interval time.Duration
	logger   logging.Logger
}

func NewSSEHandler(store ports.TaskStore, interval time.Duration, logger logging.Logger) *SSEHandler {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &SSEHandler{
		store:    store,
		interval: interval,
		logger:   logging.OrNop(logger),
	}
}

// HandleTaskStream streams snapshots of one task until it reaches a terminal
// state or the client disconnects. The terminal snapshot is always the last
// event sent.
func (h *SSEHandler) HandleTaskStream(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	task, err := h.store.Get(r.Context(), taskID)
	if err != nil {
		if atlaserrors.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load task")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	h.logger.Info("Stream opened for task %s", taskID)

	// First snapshot goes out immediately so clients see the current state
	// without waiting a full interval.
	if !h.sendSnapshot(w, flusher, task) {
		return
	}
	if task.Status.Terminal() {
		h.logger.Info("Stream closed for task %s: already terminal", taskID)
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task, err = h.store.Get(r.Context(), taskID)
			if err != nil {
				// Swept out from under the stream; nothing left to report.
				h.logger.Warn("Stream lost task %s: %v", taskID, err)
				return
			}
			if !h.sendSnapshot(w, flusher, task) {
				return
			}
			if task.Status.Terminal() {
				h.logger.Info("Stream closed for task %s: %s", taskID, task.Status)
				return
			}

		case <-r.Context().Done():
			h.logger.Info("Stream client disconnected for task %s", taskID)
			return
		}
	}
}

func (h *SSEHandler) sendSnapshot(w http.ResponseWriter, flusher http.Flusher, task *ports.Task) bool {
	data, err := json.Marshal(task)
	if err != nil {
		h.logger.Error("Failed to serialize task %s: %v", task.ID, err)
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		h.logger.Error("Failed to send stream event for task %s: %v", task.ID, err)
		return false
	}
	flusher.Flush()
	return true
}
