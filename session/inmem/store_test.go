package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/session"
	"github.com/agentforge/core/session/inmem"
)

func TestCreateSessionIsIdempotentForActiveSessions(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	now := time.Now()

	first, err := store.CreateSession(ctx, "s1", now)
	require.NoError(t, err)
	require.Equal(t, session.StatusActive, first.Status)

	second, err := store.CreateSession(ctx, "s1", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestCreateSessionAfterEndReturnsErrSessionEnded(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	now := time.Now()

	_, err := store.CreateSession(ctx, "s1", now)
	require.NoError(t, err)
	_, err = store.EndSession(ctx, "s1", now.Add(time.Minute))
	require.NoError(t, err)

	_, err = store.CreateSession(ctx, "s1", now)
	require.ErrorIs(t, err, session.ErrSessionEnded)
}

func TestLoadSessionMissingReturnsErrSessionNotFound(t *testing.T) {
	store := inmem.New()
	_, err := store.LoadSession(context.Background(), "absent")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	now := time.Now()

	_, err := store.CreateSession(ctx, "s1", now)
	require.NoError(t, err)

	first, err := store.EndSession(ctx, "s1", now.Add(time.Minute))
	require.NoError(t, err)
	second, err := store.EndSession(ctx, "s1", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, first.EndedAt, second.EndedAt)
}

func TestUpsertRunPreservesStartedAtAcrossUpdates(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()

	err := store.UpsertRun(ctx, session.RunMeta{RunID: "r1", SessionID: "s1", Status: session.RunStatusRunning})
	require.NoError(t, err)
	loaded, err := store.LoadRun(ctx, "r1")
	require.NoError(t, err)
	started := loaded.StartedAt
	require.False(t, started.IsZero())

	err = store.UpsertRun(ctx, session.RunMeta{RunID: "r1", SessionID: "s1", Status: session.RunStatusCompleted})
	require.NoError(t, err)
	loaded, err = store.LoadRun(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, started, loaded.StartedAt)
	require.Equal(t, session.RunStatusCompleted, loaded.Status)
}

func TestListRunsBySessionFiltersByStatus(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()

	require.NoError(t, store.UpsertRun(ctx, session.RunMeta{RunID: "r1", SessionID: "s1", Status: session.RunStatusRunning}))
	require.NoError(t, store.UpsertRun(ctx, session.RunMeta{RunID: "r2", SessionID: "s1", Status: session.RunStatusCompleted}))
	require.NoError(t, store.UpsertRun(ctx, session.RunMeta{RunID: "r3", SessionID: "s2", Status: session.RunStatusRunning}))

	running, err := store.ListRunsBySession(ctx, "s1", []session.RunStatus{session.RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, "r1", running[0].RunID)

	all, err := store.ListRunsBySession(ctx, "s1", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestLoadRunMissingReturnsErrRunNotFound(t *testing.T) {
	store := inmem.New()
	_, err := store.LoadRun(context.Background(), "absent")
	require.ErrorIs(t, err, session.ErrRunNotFound)
}
