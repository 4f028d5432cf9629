package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentrun/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.MemoryStore = (*Store)(nil)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "memories.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AddGetClear(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.AddMemory(ctx, core.Memory{UserID: "u1", Content: "likes tea", Topics: []string{"drinks"}, RunID: "r1"}))
	require.NoError(t, store.AddMemory(ctx, core.Memory{UserID: "u1", Content: "LIKES TEA"}))
	require.NoError(t, store.AddMemory(ctx, core.Memory{UserID: "u1", Content: "has a dog"}))
	require.NoError(t, store.AddMemory(ctx, core.Memory{UserID: "u2", Content: "likes tea"}))

	got, err := store.GetUserMemories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "likes tea", got[0].Content)
	assert.Equal(t, []string{"drinks"}, got[0].Topics)
	assert.Equal(t, "r1", got[0].RunID)
	assert.Equal(t, "has a dog", got[1].Content)

	require.NoError(t, store.Clear(ctx, "u1"))
	got, err = store.GetUserMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.GetUserMemories(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memories.db")

	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.AddMemory(ctx, core.Memory{UserID: "u1", Content: "x"}))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetUserMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_EmptyUser(t *testing.T) {
	store := newStore(t)
	assert.ErrorIs(t, store.AddMemory(context.Background(), core.Memory{Content: "x"}), core.ErrEmptyID)
}
