// Package inmem provides an in-memory implementation of session.Store.
// Intended for tests and local development; production deployments should
// use a durable backend such as session/mongo.
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentforge/core/session"
)

// Store is an in-memory session.Store. Safe for concurrent use.
//
// Session lifecycle state and run metadata are guarded by separate locks:
// UpsertRun is the one call a caller of the reply loop makes every turn, while
// CreateSession/EndSession happen once per session's entire lifetime. A
// single shared lock would serialize the hot per-turn write against cold
// session bookkeeping for no reason, so the two concerns get independent
// mutexes. Runs are also pre-bucketed by session ID rather than kept in one
// flat map, since ListRunsBySession is the one run query the store answers
// beyond a single-RunID lookup, and a bucket lets that query walk only the
// runs that could possibly match instead of every run the store holds.
type Store struct {
	sessMu   sync.RWMutex
	sessions map[string]session.Session

	runMu      sync.RWMutex
	runsByID   map[string]string                     // runID -> sessionID
	runBuckets map[string]map[string]session.RunMeta // sessionID -> runID -> RunMeta
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions:   make(map[string]session.Session),
		runsByID:   make(map[string]string),
		runBuckets: make(map[string]map[string]session.RunMeta),
	}
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(_ context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session: id is required")
	}
	if createdAt.IsZero() {
		return session.Session{}, errors.New("session: created_at is required")
	}

	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		if existing.Status == session.StatusEnded {
			return session.Session{}, session.ErrSessionEnded
		}
		return cloneSession(existing), nil
	}

	out := session.Session{ID: sessionID, Status: session.StatusActive, CreatedAt: createdAt.UTC()}
	s.sessions[sessionID] = out
	return cloneSession(out), nil
}

// LoadSession implements session.Store.
func (s *Store) LoadSession(_ context.Context, sessionID string) (session.Session, error) {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	return cloneSession(existing), nil
}

// EndSession implements session.Store.
func (s *Store) EndSession(_ context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	if endedAt.IsZero() {
		return session.Session{}, errors.New("session: ended_at is required")
	}

	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if existing.Status == session.StatusEnded {
		return cloneSession(existing), nil
	}
	at := endedAt.UTC()
	existing.Status = session.StatusEnded
	existing.EndedAt = &at
	s.sessions[sessionID] = existing
	return cloneSession(existing), nil
}

// UpsertRun implements session.Store. It does not require sessionID to name
// a session CreateSession has seen: a run bucket is created on first write,
// the same way the teacher's flat run map tolerates an as-yet-unknown
// SessionID.
func (s *Store) UpsertRun(_ context.Context, run session.RunMeta) error {
	if run.RunID == "" {
		return errors.New("session: run id is required")
	}
	if run.SessionID == "" {
		return errors.New("session: session id is required")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := time.Now().UTC()
	if priorSession, moved := s.runsByID[run.RunID]; moved && priorSession != run.SessionID {
		// A run's bucket follows its SessionID; if a caller ever upserts the
		// same RunID under a different SessionID, drop it from its old
		// bucket so ListRunsBySession never returns it twice.
		delete(s.runBuckets[priorSession], run.RunID)
	}

	bucket := s.runBuckets[run.SessionID]
	if bucket == nil {
		bucket = make(map[string]session.RunMeta)
		s.runBuckets[run.SessionID] = bucket
	}

	if existing, ok := bucket[run.RunID]; ok && !existing.StartedAt.IsZero() {
		if run.StartedAt.IsZero() {
			run.StartedAt = existing.StartedAt
		}
	} else if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.UpdatedAt = now

	bucket[run.RunID] = cloneRunMeta(run)
	s.runsByID[run.RunID] = run.SessionID
	return nil
}

// LoadRun implements session.Store.
func (s *Store) LoadRun(_ context.Context, runID string) (session.RunMeta, error) {
	s.runMu.RLock()
	defer s.runMu.RUnlock()

	sessionID, ok := s.runsByID[runID]
	if !ok {
		return session.RunMeta{}, session.ErrRunNotFound
	}
	run, ok := s.runBuckets[sessionID][runID]
	if !ok {
		return session.RunMeta{}, session.ErrRunNotFound
	}
	return cloneRunMeta(run), nil
}

// ListRunsBySession implements session.Store.
func (s *Store) ListRunsBySession(_ context.Context, sessionID string, statuses []session.RunStatus) ([]session.RunMeta, error) {
	var allowed map[session.RunStatus]struct{}
	if len(statuses) > 0 {
		allowed = make(map[session.RunStatus]struct{}, len(statuses))
		for _, st := range statuses {
			allowed[st] = struct{}{}
		}
	}

	s.runMu.RLock()
	defer s.runMu.RUnlock()

	bucket := s.runBuckets[sessionID]
	out := make([]session.RunMeta, 0, len(bucket))
	for _, run := range bucket {
		if allowed != nil {
			if _, ok := allowed[run.Status]; !ok {
				continue
			}
		}
		out = append(out, cloneRunMeta(run))
	}
	return out, nil
}

func cloneSession(in session.Session) session.Session {
	out := in
	if in.EndedAt != nil {
		at := *in.EndedAt
		out.EndedAt = &at
	}
	return out
}

func cloneRunMeta(in session.RunMeta) session.RunMeta {
	out := in
	if len(in.Labels) > 0 {
		out.Labels = make(map[string]string, len(in.Labels))
		for k, v := range in.Labels {
			out.Labels[k] = v
		}
	}
	return out
}
