package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"atlas/internal/async"
	"atlas/internal/logging"
	"atlas/internal/server/ports"
)

// DefaultMaxConcurrent caps the number of simultaneously executing tasks,
// and so the number of in-flight provider calls.
const DefaultMaxConcurrent = 8

// Metrics receives task lifecycle instrumentation callbacks.
type Metrics interface {
	RecordTaskCreated(ctx context.Context, skill ports.Skill)
	RecordTaskFinished(ctx context.Context, skill ports.Skill, status ports.TaskStatus, duration time.Duration)
	RecordQueueDepth(ctx context.Context, delta int64)
}

// Coordinator owns task scheduling: it creates records in the store and runs
// each task's handler exactly once in the background, bounded by a weighted
// semaphore.
type Coordinator struct {
	store    ports.TaskStore
	handlers map[ports.Skill]ports.SkillHandler
	sem      *semaphore.Weighted
	logger   logging.Logger
	metrics  Metrics

	// baseCtx outlives the triggering request; canceling it drains the pool.
	baseCtx context.Context
}

// NewCoordinator creates a coordinator over the given store and handler set.
func NewCoordinator(baseCtx context.Context, store ports.TaskStore, handlers []ports.SkillHandler, maxConcurrent int, logger logging.Logger, metrics Metrics) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	bySkill := make(map[ports.Skill]ports.SkillHandler, len(handlers))
	for _, handler := range handlers {
		bySkill[handler.Skill()] = handler
	}

	return &Coordinator{
		store:    store,
		handlers: bySkill,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		logger:   logging.OrNop(logger),
		metrics:  metrics,
		baseCtx:  baseCtx,
	}
}

// Supports reports whether a handler is registered for skill.
func (c *Coordinator) Supports(skill ports.Skill) bool {
	_, ok := c.handlers[skill]
	return ok
}

// Submit creates a pending task and schedules its execution. It returns as
// soon as the record exists; the handler runs in the background.
func (c *Coordinator) Submit(ctx context.Context, skill ports.Skill, method string, params json.RawMessage, owner string) (*ports.Task, error) {
	handler, ok := c.handlers[skill]
	if !ok {
		return nil, fmt.Errorf("no handler registered for skill %q", skill)
	}

	task, err := c.store.Create(ctx, skill, method, params, owner)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordTaskCreated(ctx, skill)
		c.metrics.RecordQueueDepth(ctx, 1)
	}

	c.logger.Info("Task created: id=%s skill=%s method=%s owner=%s", task.ID, skill, method, owner)

	taskID := task.ID
	async.Go(c.logger, "task-"+taskID, func() {
		c.execute(taskID, skill, handler)
	})

	return task, nil
}

// execute runs the handler for one task. Called exactly once per created
// task; every failure path ends in a terminal FAILED state rather than a
// crash.
func (c *Coordinator) execute(taskID string, skill ports.Skill, handler ports.SkillHandler) {
	ctx := c.baseCtx

	if err := c.sem.Acquire(ctx, 1); err != nil {
		if c.metrics != nil {
			c.metrics.RecordQueueDepth(ctx, -1)
		}
		c.failTask(ctx, taskID, skill, time.Time{}, fmt.Errorf("scheduler shutting down: %w", err))
		return
	}
	defer c.sem.Release(1)

	if c.metrics != nil {
		c.metrics.RecordQueueDepth(ctx, -1)
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic for task %s: %v", taskID, r)
			c.failTask(ctx, taskID, skill, start, fmt.Errorf("internal handler failure: %v", r))
		}
	}()

	if err := c.store.SetRunning(ctx, taskID); err != nil {
		c.logger.Error("Failed to mark task %s running: %v", taskID, err)
		return
	}

	task, err := c.store.Get(ctx, taskID)
	if err != nil {
		c.logger.Error("Task %s vanished before execution: %v", taskID, err)
		return
	}

	result, err := handler.Handle(ctx, task.Params, func(progress int) {
		if err := c.store.SetProgress(ctx, taskID, progress); err != nil {
			c.logger.Warn("Progress update for task %s failed: %v", taskID, err)
		}
	})
	if err != nil {
		c.failTask(ctx, taskID, skill, start, err)
		return
	}

	if err := c.store.SetResult(ctx, taskID, result); err != nil {
		c.logger.Error("Failed to store result for task %s: %v", taskID, err)
		return
	}

	if c.metrics != nil {
		c.metrics.RecordTaskFinished(ctx, skill, ports.TaskStatusCompleted, time.Since(start))
	}
	c.logger.Info("Task completed: id=%s duration=%s", taskID, time.Since(start))
}

func (c *Coordinator) failTask(ctx context.Context, taskID string, skill ports.Skill, start time.Time, cause error) {
	if err := c.store.SetError(ctx, taskID, cause); err != nil {
		c.logger.Error("Failed to record failure for task %s: %v", taskID, err)
		return
	}
	if c.metrics != nil {
		duration := time.Duration(0)
		if !start.IsZero() {
			duration = time.Since(start)
		}
		c.metrics.RecordTaskFinished(ctx, skill, ports.TaskStatusFailed, duration)
	}
	c.logger.Warn("Task failed: id=%s error=%v", taskID, cause)
}
