package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreSuite exercises the core.SessionStore contract against store.
// The store must start empty.
func RunSessionStoreSuite(t *testing.T, store core.SessionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("read missing", func(t *testing.T) {
		_, err := store.Read(ctx, "missing")
		assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
	})

	t.Run("empty id", func(t *testing.T) {
		assert.True(t, errors.Is(store.Upsert(ctx, &core.SessionRecord{}), core.ErrEmptyID))
		_, err := store.Read(ctx, "")
		assert.True(t, errors.Is(err, core.ErrEmptyID))
	})

	t.Run("upsert and read", func(t *testing.T) {
		rec := NewSessionBuilder("s1").
			User("u1").
			Entity("agent").
			State("z", "last").
			State("a", float64(1)).
			Run(CompletedRun("s1", "q", "a")).
			Build()
		require.NoError(t, store.Upsert(ctx, rec))

		got, err := store.Read(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, []string{"z", "a"}, got.State.Keys())
		assert.Equal(t, map[string]any{"z": "last", "a": float64(1)}, got.State.ToMap())
		require.Len(t, got.Runs, 1)
		assert.Equal(t, core.RunStatusCompleted, got.Runs[0].Status)
		assert.Equal(t, "a", got.Runs[0].Content())
	})

	t.Run("upsert replaces", func(t *testing.T) {
		rec := NewSessionBuilder("s1").User("u1").Entity("agent").State("z", "changed").TeamState("shared", true).Build()
		require.NoError(t, store.Upsert(ctx, rec))

		got, err := store.Read(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"z": "changed"}, got.State.ToMap())
		require.NotNil(t, got.TeamState)
		assert.Equal(t, map[string]any{"shared": true}, got.TeamState.ToMap())
	})

	t.Run("list with filter", func(t *testing.T) {
		base := time.Now().UTC().Add(-time.Hour)
		require.NoError(t, store.Upsert(ctx, NewSessionBuilder("s2").User("u2").Entity("team").CreatedAt(base.Add(time.Minute)).Build()))
		require.NoError(t, store.Upsert(ctx, NewSessionBuilder("s3").User("u1").Entity("team").CreatedAt(base.Add(2*time.Minute)).Build()))

		all, err := store.ListSessions(ctx, core.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		byUser, err := store.ListSessions(ctx, core.ListFilter{UserID: "u1"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"s1", "s3"}, ids(byUser))

		both, err := store.ListSessions(ctx, core.ListFilter{UserID: "u1", EntityID: "team"})
		require.NoError(t, err)
		assert.Equal(t, []string{"s3"}, ids(both))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "s2"))
		_, err := store.Read(ctx, "s2")
		assert.True(t, errors.Is(err, core.ErrNotFound))
		assert.True(t, errors.Is(store.Delete(ctx, "s2"), core.ErrNotFound))
	})
}

func ids(recs []*core.SessionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
