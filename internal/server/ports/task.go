package ports

import (
	"context"
	"encoding/json"
	"time"
)

// TaskStatus represents the state of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"

	// Reserved A2A protocol states. Declared for wire compatibility; no
	// transition in this service produces them.
	TaskStatusInputRequired TaskStatus = "input-required"
	TaskStatusAuthRequired  TaskStatus = "auth-required"
	TaskStatusCanceled      TaskStatus = "canceled"
	TaskStatusRejected      TaskStatus = "rejected"
)

// Terminal reports whether no further transitions occur from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Known reports whether s is part of the protocol vocabulary.
func (s TaskStatus) Known() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed,
		TaskStatusInputRequired, TaskStatusAuthRequired, TaskStatusCanceled, TaskStatusRejected:
		return true
	}
	return false
}

// Skill identifies one of the text capabilities this agent exposes.
type Skill string

const (
	SkillSummarization Skill = "summarization"
	SkillSentiment     Skill = "sentiment-analysis"
	SkillExtraction    Skill = "entity-extraction"
)

// Task represents one unit of asynchronous work.
type Task struct {
	ID          string          `json:"task_id"`
	Method      string          `json:"method"`
	Skill       Skill           `json:"skill"`
	Params      json.RawMessage `json:"params,omitempty"`
	Owner       string          `json:"owner,omitempty"`
	Status      TaskStatus      `json:"status"`
	Progress    int             `json:"progress"`
	Result      Result          `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
}

// Clone returns a copy safe to hand to readers while the executor keeps
// mutating the store's record.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Params != nil {
		clone.Params = append(json.RawMessage(nil), t.Params...)
	}
	return &clone
}

// Result is the discriminated union of capability outputs. Each variant
// serializes to its own wire shape; Kind names the variant for logs and
// metrics, not for the wire.
type Result interface {
	Kind() string
}

// SummaryResult is the output of the summarization capability.
type SummaryResult struct {
	Summary          string  `json:"summary"`
	OriginalLength   int     `json:"original_length"`
	SummaryLength    int     `json:"summary_length"`
	CompressionRatio float64 `json:"compression_ratio"`
}

func (SummaryResult) Kind() string { return "summary" }

// SentimentScores holds the per-class probabilities of a sentiment analysis.
type SentimentScores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// SentimentResult is the output of the sentiment-analysis capability.
type SentimentResult struct {
	Sentiment  string          `json:"sentiment"`
	Confidence float64         `json:"confidence"`
	Scores     SentimentScores `json:"scores"`
}

func (SentimentResult) Kind() string { return "sentiment" }

// Entity is one extracted entity with its 0-1 importance score.
type Entity struct {
	Name     string  `json:"name"`
	Salience float64 `json:"salience"`
}

// ExtractionResult is the output of the entity-extraction capability.
type ExtractionResult struct {
	Persons       []Entity `json:"persons"`
	Locations     []Entity `json:"locations"`
	Organizations []Entity `json:"organizations"`
	Dates         []Entity `json:"dates"`
	Events        []Entity `json:"events"`
	Phones        []Entity `json:"phones"`
	Emails        []Entity `json:"emails"`
	EntityCount   int      `json:"entity_count"`
	Confidence    float64  `json:"confidence"`
}

func (ExtractionResult) Kind() string { return "extraction" }

// TaskListQuery carries pagination and filtering parameters for List.
type TaskListQuery struct {
	Owner  string
	Page   int
	Limit  int
	Status TaskStatus
	Skill  Skill
}

// TaskPage is one page of a filtered, newest-first task listing.
type TaskPage struct {
	Tasks           []*Task `json:"tasks"`
	Total           int     `json:"total"`
	Page            int     `json:"page"`
	Limit           int     `json:"limit"`
	TotalPages      int     `json:"totalPages"`
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
}

// TaskStore manages task lifecycle and in-memory persistence.
type TaskStore interface {
	// Create inserts a new pending task and returns its snapshot.
	Create(ctx context.Context, skill Skill, method string, params json.RawMessage, owner string) (*Task, error)

	// Get retrieves a task snapshot by ID.
	Get(ctx context.Context, taskID string) (*Task, error)

	// List returns a page of the caller's tasks, newest first.
	List(ctx context.Context, query TaskListQuery) (*TaskPage, error)

	// SetRunning marks the task as started.
	SetRunning(ctx context.Context, taskID string) error

	// SetProgress advances the task's progress; regressions and updates to
	// terminal tasks are ignored.
	SetProgress(ctx context.Context, taskID string, progress int) error

	// SetResult stores a successful outcome and marks the task completed.
	SetResult(ctx context.Context, taskID string, result Result) error

	// SetError records the failure message and marks the task failed.
	SetError(ctx context.Context, taskID string, err error) error
}

// Generator is the opaque external generation capability.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProgressFunc receives advisory progress checkpoints from a running handler.
type ProgressFunc func(progress int)

// SkillHandler executes one capability end to end: validate params, call the
// generator, parse the response into a typed result.
type SkillHandler interface {
	Skill() Skill
	Handle(ctx context.Context, params json.RawMessage, progress ProgressFunc) (Result, error)
}
