package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/provider"
	"atlas/internal/server/app"
	"atlas/internal/server/ports"
	"atlas/internal/skills"
)

func newTestDispatcher(t *testing.T, gen ports.Generator) (*Dispatcher, *app.InMemoryTaskStore) {
	t.Helper()
	store := app.NewInMemoryTaskStore()
	handlers := []ports.SkillHandler{
		skills.NewSummarizer(gen, nil),
		skills.NewSentimentAnalyzer(gen, nil),
		skills.NewEntityExtractor(gen, nil),
	}
	coordinator := app.NewCoordinator(context.Background(), store, handlers, 4, nil, nil)
	return NewDispatcher(coordinator, store, nil), store
}

func request(t *testing.T, method string, params string, id string) *Request {
	t.Helper()
	req := &Request{JSONRPC: Version, Method: method, ID: json.RawMessage(id)}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return req
}

func awaitTerminal(t *testing.T, store ports.TaskStore, taskID string) *ports.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.Get(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
	return nil
}

func TestParseError(t *testing.T) {
	_, resp := Parse([]byte("{not json"))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
	assert.Equal(t, json.RawMessage("null"), resp.ID)
}

func TestParseRequiresMethod(t *testing.T) {
	_, resp := Parse([]byte(`{"jsonrpc":"2.0","id":7}`))
	require.NotNil(t, resp)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
	assert.Equal(t, json.RawMessage("7"), resp.ID)
}

func TestMethodNotFound(t *testing.T) {
	dispatcher, store := newTestDispatcher(t, &provider.MockGenerator{Responses: []string{"x"}})

	resp := dispatcher.Dispatch(context.Background(), request(t, "tasks/destroy", "", `"id-1"`), "ci")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, json.RawMessage(`"id-1"`), resp.ID)
	assert.Zero(t, store.Count(), "failed dispatch must not create a task")
}

func TestMessageSendRoutesAndCreatesTask(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{`{"sentiment":"positive","confidence":0.9,"scores":{"positive":0.9,"negative":0.05,"neutral":0.05}}`}}
	dispatcher, store := newTestDispatcher(t, gen)

	resp := dispatcher.Dispatch(context.Background(),
		request(t, "message/send", `{"message":"what is the sentiment of this product review?"}`, `1`), "ci")
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)

	created, ok := resp.Result.(TaskCreated)
	require.True(t, ok, "expected TaskCreated result, got %T", resp.Result)
	assert.Equal(t, "pending", created.Status)

	task, err := store.Get(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, ports.SkillSentiment, task.Skill)
	assert.Equal(t, "ci", task.Owner)
	assert.Equal(t, "message/send", task.Method)

	final := awaitTerminal(t, store, created.TaskID)
	assert.Equal(t, ports.TaskStatusCompleted, final.Status)
}

func TestMessageSendAcceptsPartsForm(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"A summary."}}
	dispatcher, store := newTestDispatcher(t, gen)

	resp := dispatcher.Dispatch(context.Background(),
		request(t, "message/send", `{"message":{"parts":[{"text":"please summarize "},{"text":"this long document"}]}}`, `2`), "ci")
	require.Nil(t, resp.Error)

	created := resp.Result.(TaskCreated)
	task, err := store.Get(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, ports.SkillSummarization, task.Skill)
}

func TestMessageSendMissingText(t *testing.T) {
	dispatcher, store := newTestDispatcher(t, &provider.MockGenerator{Responses: []string{"x"}})

	for _, params := range []string{"", `{}`, `{"message":""}`, `{"message":{"parts":[]}}`} {
		resp := dispatcher.Dispatch(context.Background(), request(t, "message/send", params, `3`), "ci")
		require.NotNil(t, resp.Error, "params %q should be rejected", params)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	}
	assert.Zero(t, store.Count(), "invalid params must not create tasks")
}

func TestLegacyMethodBindsHandlerDirectly(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"A summary."}}
	dispatcher, store := newTestDispatcher(t, gen)

	// Text mentioning "sentiment" still goes to the summarizer: legacy
	// methods bypass the keyword router.
	resp := dispatcher.Dispatch(context.Background(),
		request(t, "text.summarize", `{"text":"the sentiment here is great, condense it anyway"}`, `4`), "ci")
	require.Nil(t, resp.Error)

	created := resp.Result.(TaskCreated)
	task, err := store.Get(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, ports.SkillSummarization, task.Skill)
	assert.Equal(t, "text.summarize", task.Method)
}

func TestLegacyMethodRequiresText(t *testing.T) {
	dispatcher, store := newTestDispatcher(t, &provider.MockGenerator{Responses: []string{"x"}})

	resp := dispatcher.Dispatch(context.Background(), request(t, "data.extract", `{}`, `5`), "ci")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Zero(t, store.Count())
}

func TestTasksGet(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"A summary."}}
	dispatcher, _ := newTestDispatcher(t, gen)

	createResp := dispatcher.Dispatch(context.Background(),
		request(t, "text.summarize", `{"text":"a perfectly reasonable input"}`, `6`), "ci")
	require.Nil(t, createResp.Error)
	taskID := createResp.Result.(TaskCreated).TaskID

	resp := dispatcher.Dispatch(context.Background(),
		request(t, "tasks/get", `{"id":"`+taskID+`"}`, `7`), "ci")
	require.Nil(t, resp.Error)
	task, ok := resp.Result.(*ports.Task)
	require.True(t, ok, "expected *ports.Task, got %T", resp.Result)
	assert.Equal(t, taskID, task.ID)

	missing := dispatcher.Dispatch(context.Background(),
		request(t, "tasks/get", `{"id":"task-unknown"}`, `8`), "ci")
	require.NotNil(t, missing.Error)
	assert.Equal(t, CodeInvalidParams, missing.Error.Code)

	noID := dispatcher.Dispatch(context.Background(), request(t, "tasks/get", `{}`, `9`), "ci")
	require.NotNil(t, noID.Error)
	assert.Equal(t, CodeInvalidParams, noID.Error.Code)
}

func TestTasksListScopedToOwner(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"A summary."}}
	dispatcher, _ := newTestDispatcher(t, gen)

	for i := 0; i < 3; i++ {
		resp := dispatcher.Dispatch(context.Background(),
			request(t, "text.summarize", `{"text":"a perfectly reasonable input"}`, `10`), "me")
		require.Nil(t, resp.Error)
	}
	other := dispatcher.Dispatch(context.Background(),
		request(t, "text.summarize", `{"text":"a perfectly reasonable input"}`, `11`), "someone-else")
	require.Nil(t, other.Error)

	resp := dispatcher.Dispatch(context.Background(), request(t, "tasks/list", `{"page":1,"limit":2}`, `12`), "me")
	require.Nil(t, resp.Error)

	listing, ok := resp.Result.(tasksListResult)
	require.True(t, ok, "expected tasksListResult, got %T", resp.Result)
	assert.Equal(t, 3, listing.Pagination.Total)
	assert.Equal(t, 2, listing.Pagination.TotalPages)
	assert.True(t, listing.Pagination.HasNextPage)
	assert.False(t, listing.Pagination.HasPreviousPage)
	assert.Len(t, listing.Tasks, 2)
	for _, task := range listing.Tasks {
		assert.Equal(t, "me", task.Owner)
	}
}

func TestTasksListValidation(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, &provider.MockGenerator{Responses: []string{"x"}})

	for _, params := range []string{`{"page":0,"limit":10}`, `{"page":1,"limit":101}`, `{"page":-2,"limit":5}`} {
		resp := dispatcher.Dispatch(context.Background(), request(t, "tasks/list", params, `13`), "ci")
		require.NotNil(t, resp.Error, "params %s should be rejected", params)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	}
}

func TestUnconfiguredProviderFailsFast(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"never reached"}}
	store := app.NewInMemoryTaskStore()
	coordinator := app.NewCoordinator(context.Background(), store,
		[]ports.SkillHandler{skills.NewSummarizer(gen, nil)}, 4, nil, nil)
	dispatcher := NewDispatcher(coordinator, store, nil, WithProviderCheck(func() bool { return false }))

	resp := dispatcher.Dispatch(context.Background(),
		request(t, "text.summarize", `{"text":"a perfectly reasonable input"}`, `14`), "ci")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "capabilities not configured")
	assert.Zero(t, store.Count())
	assert.Zero(t, gen.CallCount())
}

func TestResponseEnvelopeShape(t *testing.T) {
	resp := NewResponse(json.RawMessage(`42`), TaskCreated{TaskID: "task-1", Status: "pending"})
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Equal(t, float64(42), decoded["id"])
	assert.NotContains(t, decoded, "error")

	errResp := NewErrorResponse(nil, CodeInternalError, "boom")
	raw, err = json.Marshal(errResp)
	require.NoError(t, err)
	decoded = map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["id"], "absent request id should echo as null")
	assert.NotContains(t, decoded, "result")
}
