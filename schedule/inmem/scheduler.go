// Package inmem provides an in-memory reference implementation of
// schedule.Scheduler, grounded on the same sync.RWMutex-guarded,
// clone-on-read map idiom runtime/agent/engine/inmem and
// runtime/agent/session/inmem both use for their own in-process backends.
// It registers jobs but never fires them; it exists to exercise the
// schedule.Scheduler trait surface without requiring a durable backend.
package inmem

import (
	"context"
	"sync"

	"github.com/agentforge/core/schedule"
)

// Scheduler is an in-memory schedule.Scheduler. Safe for concurrent use.
type Scheduler struct {
	mu   sync.RWMutex
	jobs map[string]schedule.Job
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]schedule.Job)}
}

// Submit implements schedule.Scheduler.
func (s *Scheduler) Submit(_ context.Context, job schedule.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Paused = false
	s.jobs[job.ID] = job
	return nil
}

// Pause implements schedule.Scheduler.
func (s *Scheduler) Pause(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return schedule.ErrJobNotFound
	}
	job.Paused = true
	s.jobs[id] = job
	return nil
}

// Resume implements schedule.Scheduler.
func (s *Scheduler) Resume(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return schedule.ErrJobNotFound
	}
	job.Paused = false
	s.jobs[id] = job
	return nil
}

// List implements schedule.Scheduler.
func (s *Scheduler) List(_ context.Context) ([]schedule.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schedule.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out, nil
}
