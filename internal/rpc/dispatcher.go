package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/logging"
	"atlas/internal/server/app"
	"atlas/internal/server/ports"
	"atlas/internal/skills"
)

// Legacy direct-capability methods kept for pre-routing clients. They bind a
// task straight to the named handler, bypassing the keyword router.
var legacyMethods = map[string]ports.Skill{
	"text.summarize":         ports.SkillSummarization,
	"text.analyze_sentiment": ports.SkillSentiment,
	"data.extract":           ports.SkillExtraction,
}

// Dispatcher routes parsed JSON-RPC requests to the task lifecycle.
type Dispatcher struct {
	coordinator   *app.Coordinator
	store         ports.TaskStore
	logger        logging.Logger
	providerReady func() bool
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithProviderCheck makes task-creating methods fail fast with an internal
// error while the generation backend is not configured, instead of creating
// tasks doomed to fail.
func WithProviderCheck(ready func() bool) DispatcherOption {
	return func(d *Dispatcher) { d.providerReady = ready }
}

// NewDispatcher creates a dispatcher over the coordinator and task store.
func NewDispatcher(coordinator *app.Coordinator, store ports.TaskStore, logger logging.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		coordinator: coordinator,
		store:       store,
		logger:      logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Parse decodes a raw body into a Request. Malformed JSON is the protocol
// ParseError; a well-formed body that is not a valid request envelope (wrong
// shape, unknown fields, missing method) is an InvalidRequest.
func Parse(body []byte) (*Request, *Response) {
	if !json.Valid(body) {
		return nil, NewErrorResponse(nil, CodeParseError, "Parse error: invalid JSON")
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()

	var req Request
	if err := decoder.Decode(&req); err != nil {
		return nil, NewErrorResponse(nil, CodeInvalidRequest, fmt.Sprintf("Invalid request: %v", err))
	}
	if req.Method == "" {
		return nil, NewErrorResponse(req.ID, CodeInvalidRequest, "Invalid request: method is required")
	}
	return &req, nil
}

// Dispatch executes one request on behalf of the authenticated owner.
// Failures here never create a task.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, owner string) *Response {
	switch req.Method {
	case "message/send":
		return d.handleMessageSend(ctx, req, owner)
	case "tasks/get":
		return d.handleTasksGet(ctx, req)
	case "tasks/list":
		return d.handleTasksList(ctx, req, owner)
	}

	if skill, ok := legacyMethods[req.Method]; ok {
		return d.createTask(ctx, req, skill, owner)
	}

	return NewErrorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
}

// messageSendParams accepts the free-text forms clients actually send: a
// plain "message" string, a {"text": ...} object, or an A2A parts array.
type messageSendParams struct {
	Message json.RawMessage `json:"message"`
	Text    string          `json:"text"`
}

type messageObject struct {
	Text  string `json:"text"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

func (d *Dispatcher) handleMessageSend(ctx context.Context, req *Request, owner string) *Response {
	text, err := extractMessageText(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, err.Error())
	}

	skill := skills.Route(text)
	d.logger.Debug("Routed message to skill %s", skill)

	params, _ := json.Marshal(skills.TextParams{Text: text})
	return d.submit(ctx, req, skill, params, owner)
}

func extractMessageText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("Invalid params: message text is required")
	}

	var params messageSendParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", fmt.Errorf("Invalid params: must be a JSON object")
	}

	if text := strings.TrimSpace(params.Text); text != "" {
		return text, nil
	}

	if len(params.Message) > 0 {
		var asString string
		if err := json.Unmarshal(params.Message, &asString); err == nil {
			if text := strings.TrimSpace(asString); text != "" {
				return text, nil
			}
		}

		var asObject messageObject
		if err := json.Unmarshal(params.Message, &asObject); err == nil {
			if text := strings.TrimSpace(asObject.Text); text != "" {
				return text, nil
			}
			var sb strings.Builder
			for _, part := range asObject.Parts {
				sb.WriteString(part.Text)
			}
			if text := strings.TrimSpace(sb.String()); text != "" {
				return text, nil
			}
		}
	}

	return "", fmt.Errorf("Invalid params: message text is required")
}

// createTask handles the legacy direct-capability methods: params go to the
// handler untouched, aside from requiring the text parameter upfront.
func (d *Dispatcher) createTask(ctx context.Context, req *Request, skill ports.Skill, owner string) *Response {
	var params skills.TextParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: must be a JSON object")
		}
	}
	if strings.TrimSpace(params.Text) == "" {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: text parameter is required")
	}

	return d.submit(ctx, req, skill, req.Params, owner)
}

func (d *Dispatcher) submit(ctx context.Context, req *Request, skill ports.Skill, params json.RawMessage, owner string) *Response {
	if d.providerReady != nil && !d.providerReady() {
		return NewErrorResponse(req.ID, CodeInternalError, "Internal error: capabilities not configured")
	}

	task, err := d.coordinator.Submit(ctx, skill, req.Method, params, owner)
	if err != nil {
		return d.errorResponse(req.ID, err)
	}

	return NewResponse(req.ID, TaskCreated{
		TaskID: task.ID,
		Status: string(task.Status),
	})
}

type tasksGetParams struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
}

func (d *Dispatcher) handleTasksGet(ctx context.Context, req *Request) *Response {
	var params tasksGetParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: must be a JSON object")
		}
	}

	taskID := params.ID
	if taskID == "" {
		taskID = params.TaskID
	}
	if taskID == "" {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: task id is required")
	}

	task, err := d.store.Get(ctx, taskID)
	if err != nil {
		return d.errorResponse(req.ID, err)
	}
	return NewResponse(req.ID, task)
}

type tasksListParams struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Status string `json:"status"`
	Skill  string `json:"skill"`
}

// tasksListResult wraps the page in the wire shape clients paginate over.
type tasksListResult struct {
	Tasks      []*ports.Task  `json:"tasks"`
	Pagination paginationInfo `json:"pagination"`
}

type paginationInfo struct {
	Page            int  `json:"page"`
	Limit           int  `json:"limit"`
	Total           int  `json:"total"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

func (d *Dispatcher) handleTasksList(ctx context.Context, req *Request, owner string) *Response {
	params := tasksListParams{Page: 1, Limit: 20}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: must be a JSON object")
		}
	}

	page, err := d.store.List(ctx, ports.TaskListQuery{
		Owner:  owner,
		Page:   params.Page,
		Limit:  params.Limit,
		Status: ports.TaskStatus(params.Status),
		Skill:  ports.Skill(params.Skill),
	})
	if err != nil {
		return d.errorResponse(req.ID, err)
	}

	return NewResponse(req.ID, tasksListResult{
		Tasks: page.Tasks,
		Pagination: paginationInfo{
			Page:            page.Page,
			Limit:           page.Limit,
			Total:           page.Total,
			TotalPages:      page.TotalPages,
			HasNextPage:     page.HasNextPage,
			HasPreviousPage: page.HasPreviousPage,
		},
	})
}

// errorResponse maps the error taxonomy onto JSON-RPC codes.
func (d *Dispatcher) errorResponse(id json.RawMessage, err error) *Response {
	switch {
	case atlaserrors.IsValidation(err), atlaserrors.IsNotFound(err):
		return NewErrorResponse(id, CodeInvalidParams, err.Error())
	default:
		d.logger.Error("Internal dispatch error: %v", err)
		return NewErrorResponse(id, CodeInternalError, fmt.Sprintf("Internal error: %v", err))
	}
}
