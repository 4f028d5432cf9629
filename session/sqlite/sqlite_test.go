package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.SessionStore = (*Store)(nil)

func TestStore(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	testutil.RunSessionStoreSuite(t, store)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	store, err := New(path)
	require.NoError(t, err)
	rec := testutil.NewSessionBuilder("s1").
		State("k", "v").
		TeamState("shared", float64(2)).
		Run(testutil.CompletedRun("s1", "hi", "hello")).
		Build()
	require.NoError(t, store.Upsert(ctx, rec))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Read(ctx, "s1")
	require.NoError(t, err)
	v, _ := got.State.Get("k")
	assert.Equal(t, "v", v)
	require.NotNil(t, got.TeamState)
	shared, _ := got.TeamState.Get("shared")
	assert.Equal(t, float64(2), shared)
	require.Len(t, got.Runs, 1)
	assert.Equal(t, core.RunStatusCompleted, got.Runs[0].Status)
}

func TestStore_NoTeamState(t *testing.T) {
	ctx := context.Background()
	store, err := New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Upsert(ctx, testutil.NewSessionBuilder("s1").Build()))
	got, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got.TeamState)
}
