// Package temporal implements schedule.Scheduler against Temporal Schedules,
// drawing the same boundary the teacher draws between
// runtime/agent/engine (a pluggable trait) and runtime/agent/engine/temporal
// (one concrete backend): this package only drives client.ScheduleClient —
// Submit, Pause, Resume, List — and registers no workflow definitions, no
// worker, and no activities. Whatever SourcePath names still runs as a
// workflow started out of band; that durable-execution machinery is
// explicitly out of scope here.
package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/agentforge/core/schedule"
)

const scheduledWorkflowType = "agentforge.ScheduledSession"

// Scheduler adapts client.ScheduleClient to schedule.Scheduler.
type Scheduler struct {
	client    client.Client
	taskQueue string
}

// New builds a Scheduler over an already-connected Temporal client.
// taskQueue is the queue scheduled workflow executions are dispatched to;
// this package never starts a worker that drains it.
func New(c client.Client, taskQueue string) (*Scheduler, error) {
	if c == nil {
		return nil, errors.New("temporal: client is required")
	}
	if taskQueue == "" {
		return nil, errors.New("temporal: task queue is required")
	}
	return &Scheduler{client: c, taskQueue: taskQueue}, nil
}

// Submit implements schedule.Scheduler by creating or updating a Temporal
// Schedule whose ID is job.ID. An existing schedule with the same ID is
// deleted and recreated, since the SDK's schedule handle has no in-place
// "replace spec and input" update short of the mutable-update API this
// adapter does not need yet.
func (s *Scheduler) Submit(ctx context.Context, job schedule.Job) error {
	if job.ID == "" {
		return errors.New("temporal: job id is required")
	}
	if job.Cron == "" {
		return errors.New("temporal: cron expression is required")
	}

	handle := s.client.ScheduleClient().GetHandle(ctx, job.ID)
	if _, err := handle.Describe(ctx); err == nil {
		if err := handle.Delete(ctx); err != nil {
			return fmt.Errorf("temporal: delete existing schedule %s: %w", job.ID, err)
		}
	}

	_, err := s.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: job.ID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{job.Cron},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        job.ID,
			Workflow:  scheduledWorkflowType,
			Args:      []any{job.SourcePath},
			TaskQueue: s.taskQueue,
		},
		Paused: false,
	})
	if err != nil {
		return fmt.Errorf("temporal: create schedule %s: %w", job.ID, err)
	}
	return nil
}

// Pause implements schedule.Scheduler.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	handle := s.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		return schedule.ErrJobNotFound
	}
	if err := handle.Pause(ctx, client.SchedulePauseOptions{}); err != nil {
		return fmt.Errorf("temporal: pause schedule %s: %w", id, err)
	}
	return nil
}

// Resume implements schedule.Scheduler.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	handle := s.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		return schedule.ErrJobNotFound
	}
	if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{}); err != nil {
		return fmt.Errorf("temporal: resume schedule %s: %w", id, err)
	}
	return nil
}

// List implements schedule.Scheduler by iterating every registered Temporal
// Schedule and describing each one for its current pause state and last run.
func (s *Scheduler) List(ctx context.Context) ([]schedule.Job, error) {
	iter, err := s.client.ScheduleClient().List(ctx, client.ScheduleListOptions{})
	if err != nil {
		return nil, fmt.Errorf("temporal: list schedules: %w", err)
	}

	var out []schedule.Job
	for iter.HasNext() {
		entry, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("temporal: iterate schedules: %w", err)
		}
		job := schedule.Job{ID: entry.ID, Paused: entry.Paused}

		// List returns only summary fields; Describe fills in the rest so
		// List's shape matches schedule.Job exactly for callers that need
		// more than ID/Paused at a glance.
		desc, err := s.client.ScheduleClient().GetHandle(ctx, entry.ID).Describe(ctx)
		if err == nil {
			if action, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok && len(action.Args) > 0 {
				if path, ok := action.Args[0].(string); ok {
					job.SourcePath = path
				}
			}
			if len(desc.Schedule.Spec.CronExpressions) > 0 {
				job.Cron = desc.Schedule.Spec.CronExpressions[0]
			}
			if len(desc.Info.RecentActions) > 0 {
				job.LastRun = desc.Info.RecentActions[len(desc.Info.RecentActions)-1].ActualTime
			}
		}
		out = append(out, job)
	}
	return out, nil
}
