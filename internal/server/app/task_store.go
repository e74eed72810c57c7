package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/server/ports"
)

// InMemoryTaskStore implements ports.TaskStore with process-lifetime storage.
// A single RWMutex guards the map; per-task writes come from exactly one
// executor goroutine, readers get snapshots.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*ports.Task
	now   func() time.Time
}

// NewInMemoryTaskStore creates a new in-memory task store.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*ports.Task),
		now:   time.Now,
	}
}

// Create inserts a new pending task. IDs are never reused within the process
// lifetime.
func (s *InMemoryTaskStore) Create(ctx context.Context, skill ports.Skill, method string, params json.RawMessage, owner string) (*ports.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &ports.Task{
		ID:        fmt.Sprintf("task-%s", uuid.New().String()),
		Method:    method,
		Skill:     skill,
		Params:    append(json.RawMessage(nil), params...),
		Owner:     owner,
		Status:    ports.TaskStatusPending,
		Progress:  0,
		CreatedAt: s.now(),
	}

	s.tasks[task.ID] = task
	return task.Clone(), nil
}

// Get retrieves a task snapshot by ID.
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*ports.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, atlaserrors.NewNotFoundError("task", taskID)
	}
	return task.Clone(), nil
}

// List returns one page of the owner's tasks, newest first, with optional
// status and skill equality filters.
func (s *InMemoryTaskStore) List(ctx context.Context, query ports.TaskListQuery) (*ports.TaskPage, error) {
	if query.Page < 1 {
		return nil, atlaserrors.NewValidationError("page", "must be >= 1")
	}
	if query.Limit < 1 || query.Limit > 100 {
		return nil, atlaserrors.NewValidationError("limit", "must be between 1 and 100")
	}
	if query.Status != "" && !query.Status.Known() {
		return nil, atlaserrors.NewValidationError("status", fmt.Sprintf("unknown status %q", query.Status))
	}

	s.mu.RLock()
	filtered := make([]*ports.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if task.Owner != query.Owner {
			continue
		}
		if query.Status != "" && task.Status != query.Status {
			continue
		}
		if query.Skill != "" && task.Skill != query.Skill {
			continue
		}
		filtered = append(filtered, task.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		// Stable order for tasks created within the same tick.
		return filtered[i].ID < filtered[j].ID
	})

	total := len(filtered)
	totalPages := (total + query.Limit - 1) / query.Limit

	start := (query.Page - 1) * query.Limit
	end := start + query.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &ports.TaskPage{
		Tasks:           filtered[start:end],
		Total:           total,
		Page:            query.Page,
		Limit:           query.Limit,
		TotalPages:      totalPages,
		HasNextPage:     query.Page < totalPages,
		HasPreviousPage: query.Page > 1 && total > 0,
	}, nil
}

// SetRunning marks the task as started with the initial progress checkpoint.
func (s *InMemoryTaskStore) SetRunning(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return atlaserrors.NewNotFoundError("task", taskID)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %s is already terminal (%s)", taskID, task.Status)
	}

	task.Status = ports.TaskStatusRunning
	if task.Progress < 10 {
		task.Progress = 10
	}
	if task.StartedAt == nil {
		now := s.now()
		task.StartedAt = &now
	}
	return nil
}

// SetProgress advances progress. Regressions and updates to terminal tasks
// are ignored so the value stays monotone and frozen after completion.
func (s *InMemoryTaskStore) SetProgress(ctx context.Context, taskID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return atlaserrors.NewNotFoundError("task", taskID)
	}
	if task.Status.Terminal() {
		return nil
	}
	if progress > 100 {
		progress = 100
	}
	if progress > task.Progress {
		task.Progress = progress
	}
	return nil
}

// SetResult stores a successful outcome: completed status, full progress and
// the completion timestamp. Exactly one of result/error is ever set.
func (s *InMemoryTaskStore) SetResult(ctx context.Context, taskID string, result ports.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return atlaserrors.NewNotFoundError("task", taskID)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %s is already terminal (%s)", taskID, task.Status)
	}

	task.Status = ports.TaskStatusCompleted
	task.Progress = 100
	task.Result = result
	now := s.now()
	task.CompletedAt = &now
	return nil
}

// SetError records a failure message and the failure timestamp.
func (s *InMemoryTaskStore) SetError(ctx context.Context, taskID string, taskErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return atlaserrors.NewNotFoundError("task", taskID)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %s is already terminal (%s)", taskID, task.Status)
	}

	task.Status = ports.TaskStatusFailed
	task.Error = taskErr.Error()
	now := s.now()
	task.FailedAt = &now
	return nil
}

// Count returns the number of retained tasks.
func (s *InMemoryTaskStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// SweepExpired evicts tasks created more than ttl ago and returns how many
// were removed. A non-terminal task that old implies a lost executor, so it
// is evicted like the rest.
func (s *InMemoryTaskStore) SweepExpired(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, task := range s.tasks {
		if task.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}
