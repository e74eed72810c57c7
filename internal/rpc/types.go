// Package rpc implements the JSON-RPC 2.0 envelope and method dispatch for
// the A2A surface.
package rpc

import "encoding/json"

// Version is the JSON-RPC protocol version echoed in every envelope.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an incoming JSON-RPC envelope. ID is kept raw so strings,
// numbers and null are echoed verbatim.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is an outgoing JSON-RPC envelope with either a result or an error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// ResponseError is the JSON-RPC error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewResponse wraps result in a success envelope echoing id.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: normalizeID(id)}
}

// NewErrorResponse builds an error envelope echoing id.
func NewErrorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   &ResponseError{Code: code, Message: message},
		ID:      normalizeID(id),
	}
}

// normalizeID maps an absent id to JSON null so the id field is always
// present in responses.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// TaskCreated is the result payload of every task-creating method.
type TaskCreated struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}
