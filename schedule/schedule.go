// Package schedule defines the trait surface for scheduled-job backends,
// named after and shaped like the teacher's runtime/agent/engine.Engine
// abstraction: a pluggable interface so a durable backend (schedule/temporal)
// or an in-memory one can be swapped without the caller knowing which is
// wired in. Unlike engine.Engine, this surface never runs workflow code
// itself — it only submits, pauses, resumes, and lists scheduled jobs whose
// actual execution happens out of process.
package schedule

import (
	"context"
	"errors"
	"time"
)

// Job describes one scheduled invocation of a reply-loop session.
type Job struct {
	// ID is the durable identifier of the scheduled job.
	ID string
	// Cron is a standard five-field cron expression.
	Cron string
	// SourcePath identifies what the job runs (a prompt file, a session
	// template) in a backend-agnostic way; schedulers never interpret it.
	SourcePath string
	// LastRun records when the job last fired. Zero if it has never run.
	LastRun time.Time
	// CurrentlyRunning is true while an invocation triggered by this job is
	// in flight.
	CurrentlyRunning bool
	// Paused is true when the job is registered but will not fire.
	Paused bool
}

// Scheduler submits and manages scheduled jobs against a backend. It never
// executes job bodies itself; implementations only drive the backend's own
// scheduling primitives (a cron daemon, Temporal Schedules, …).
type Scheduler interface {
	// Submit registers a new job or replaces the definition of an existing
	// one (matched by Job.ID). The job starts unpaused.
	Submit(ctx context.Context, job Job) error
	// Pause stops a job from firing without removing its definition.
	Pause(ctx context.Context, id string) error
	// Resume re-enables a previously paused job.
	Resume(ctx context.Context, id string) error
	// List returns every job currently registered with the scheduler.
	List(ctx context.Context) ([]Job, error)
}

// ErrJobNotFound indicates Pause or Resume was called with an id the
// scheduler has no record of.
var ErrJobNotFound = errors.New("schedule: job not found")
