// Package mongo implements session.Store against MongoDB using the v2
// driver, grounded on the teacher's features/session/mongo package. It
// collapses the teacher's client-interface indirection (itself there to let
// goa-ai fake the wire client in unit tests) into a single Store that talks
// to *mongo.Client directly. This package has no tests of its own; the
// session.Store contract is exercised through session/inmem's tests.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentforge/core/session"
)

const (
	defaultSessionsCollection = "agent_sessions"
	defaultRunsCollection     = "agent_runs"
	defaultOpTimeout          = 5 * time.Second
)

// Options configures a Store.
type Options struct {
	Client             *mongodriver.Client
	Database           string
	SessionsCollection string
	RunsCollection     string
	Timeout            time.Duration
}

// Store implements session.Store against MongoDB.
type Store struct {
	sessions *mongodriver.Collection
	runs     *mongodriver.Collection
	timeout  time.Duration
}

// NewStore builds a Store and ensures its indexes exist.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	sessionsName := opts.SessionsCollection
	if sessionsName == "" {
		sessionsName = defaultSessionsCollection
	}
	runsName := opts.RunsCollection
	if runsName == "" {
		runsName = defaultRunsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		sessions: db.Collection(sessionsName),
		runs:     db.Collection(runsName),
		timeout:  timeout,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.runs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := s.runs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "status", Value: 1}},
	})
	return err
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("mongo: session id is required")
	}
	if createdAt.IsZero() {
		return session.Session{}, errors.New("mongo: created_at is required")
	}

	existing, err := s.LoadSession(ctx, sessionID)
	if err == nil {
		if existing.Status == session.StatusEnded {
			return session.Session{}, session.ErrSessionEnded
		}
		return existing, nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		return session.Session{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	now := time.Now().UTC()
	filter := bson.M{"session_id": sessionID}
	// setOnInsert only: CreateSession must never modify an existing
	// session document, and Mongo rejects an update that sets the same
	// path in both $set and $setOnInsert.
	update := bson.M{"$setOnInsert": bson.M{
		"session_id": sessionID,
		"status":     session.StatusActive,
		"created_at": createdAt.UTC(),
		"updated_at": now,
	}}
	if _, err := s.sessions.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return session.Session{}, err
	}
	return s.LoadSession(ctx, sessionID)
}

// LoadSession implements session.Store.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("mongo: session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	err := s.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return session.Session{}, session.ErrSessionNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	return doc.toSession(), nil
}

// EndSession implements session.Store.
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	if endedAt.IsZero() {
		return session.Session{}, errors.New("mongo: ended_at is required")
	}
	existing, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	if existing.Status == session.StatusEnded {
		return existing, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	update := bson.M{"$set": bson.M{
		"status":     session.StatusEnded,
		"ended_at":   endedAt.UTC(),
		"updated_at": time.Now().UTC(),
	}}
	if _, err := s.sessions.UpdateOne(ctx, bson.M{"session_id": sessionID}, update); err != nil {
		return session.Session{}, err
	}
	return s.LoadSession(ctx, sessionID)
}

// UpsertRun implements session.Store.
func (s *Store) UpsertRun(ctx context.Context, run session.RunMeta) error {
	if run.RunID == "" {
		return errors.New("mongo: run id is required")
	}
	if run.SessionID == "" {
		return errors.New("mongo: session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	filter := bson.M{"run_id": run.RunID}
	update := bson.M{
		"$set": bson.M{
			"run_id":     run.RunID,
			"session_id": run.SessionID,
			"status":     run.Status,
			"updated_at": now,
			"labels":     cloneLabels(run.Labels),
		},
		"$setOnInsert": bson.M{"started_at": startedAt.UTC()},
	}
	_, err := s.runs.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// LoadRun implements session.Store.
func (s *Store) LoadRun(ctx context.Context, runID string) (session.RunMeta, error) {
	if runID == "" {
		return session.RunMeta{}, errors.New("mongo: run id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc runDocument
	err := s.runs.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return session.RunMeta{}, session.ErrRunNotFound
	}
	if err != nil {
		return session.RunMeta{}, err
	}
	return doc.toRunMeta(), nil
}

// ListRunsBySession implements session.Store.
func (s *Store) ListRunsBySession(ctx context.Context, sessionID string, statuses []session.RunStatus) ([]session.RunMeta, error) {
	if sessionID == "" {
		return nil, errors.New("mongo: session id is required")
	}
	filter := bson.M{"session_id": sessionID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.runs.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []session.RunMeta
	for cur.Next(ctx) {
		var doc runDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRunMeta())
	}
	return out, cur.Err()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type sessionDocument struct {
	SessionID string         `bson:"session_id"`
	Status    session.Status `bson:"status"`
	CreatedAt time.Time      `bson:"created_at"`
	EndedAt   *time.Time     `bson:"ended_at,omitempty"`
}

func (doc sessionDocument) toSession() session.Session {
	var endedAt *time.Time
	if doc.EndedAt != nil {
		at := doc.EndedAt.UTC()
		endedAt = &at
	}
	return session.Session{ID: doc.SessionID, Status: doc.Status, CreatedAt: doc.CreatedAt.UTC(), EndedAt: endedAt}
}

type runDocument struct {
	RunID     string            `bson:"run_id"`
	SessionID string            `bson:"session_id"`
	Status    session.RunStatus `bson:"status"`
	StartedAt time.Time         `bson:"started_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
	Labels    map[string]string `bson:"labels,omitempty"`
}

func (doc runDocument) toRunMeta() session.RunMeta {
	return session.RunMeta{
		RunID:     doc.RunID,
		SessionID: doc.SessionID,
		Status:    doc.Status,
		StartedAt: doc.StartedAt,
		UpdatedAt: doc.UpdatedAt,
		Labels:    cloneLabels(doc.Labels),
	}
}

func cloneLabels(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
