package http

import (
	"encoding/json"
	"io"
	"net/http"

	"atlas/internal/auth"
	"atlas/internal/logging"
	"atlas/internal/rpc"
)

const maxRPCBodySize = 1 << 20 // 1 MiB

// RPCHandler serves the JSON-RPC endpoint. Protocol failures are reported in
// the JSON-RPC envelope with HTTP 200; only transport-level problems map to
// HTTP status codes.
type RPCHandler struct {
	dispatcher *rpc.Dispatcher
	logger     logging.Logger
}

func NewRPCHandler(dispatcher *rpc.Dispatcher, logger logging.Logger) *RPCHandler {
	return &RPCHandler{
		dispatcher: dispatcher,
		logger:     logging.OrNop(logger),
	}
}

func (h *RPCHandler) HandleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("Failed to read RPC body: %v", err)
		h.writeResponse(w, rpc.NewErrorResponse(nil, rpc.CodeInvalidRequest, "Invalid request: body unreadable or too large"))
		return
	}

	req, parseErr := rpc.Parse(body)
	if parseErr != nil {
		h.writeResponse(w, parseErr)
		return
	}

	owner := auth.OwnerFromContext(r.Context())
	h.writeResponse(w, h.dispatcher.Dispatch(r.Context(), req, owner))
}

func (h *RPCHandler) writeResponse(w http.ResponseWriter, resp *rpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode RPC response: %v", err)
	}
}
