package session

import (
	"testing"

	"github.com/hupe1980/agentrun/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_LoadedWins(t *testing.T) {
	current := core.StateBagFromMap(map[string]any{"a": 1})
	loaded := core.StateBagFromMap(map[string]any{"a": 2, "b": 3})

	out := Reconcile(current, loaded, "new")

	assert.Equal(t, map[string]any{"a": 2, "b": 3, core.StateKeySessionID: "new"}, out.ToMap())
	assert.Equal(t, []string{"a", "b", core.StateKeySessionID}, out.Keys())

	v, _ := loaded.Get("a")
	assert.Equal(t, 2, v, "loaded bag must not be mutated")
}

func TestReconcile_AddsMissingCurrentKeys(t *testing.T) {
	current := core.StateBagFromMap(map[string]any{"x": "mem", core.StateKeySessionID: "old"})
	loaded := core.StateBagFromMap(map[string]any{"y": "db"})

	out := Reconcile(current, loaded, "s2")
	assert.Equal(t, map[string]any{"x": "mem", "y": "db", core.StateKeySessionID: "s2"}, out.ToMap())
	assert.Empty(t, out.WrittenKeys())
}

func TestReconcile_NothingLoaded(t *testing.T) {
	current := core.StateBagFromMap(map[string]any{"k": "v"})
	out := Reconcile(current, nil, "s1")
	assert.Equal(t, map[string]any{"k": "v", core.StateKeySessionID: "s1"}, out.ToMap())
}

func TestPropagate_CompleteOverwrite(t *testing.T) {
	parent := core.StateBagFromMap(map[string]any{"plan": "v2"})
	child := core.StateBagFromMap(map[string]any{"plan": "v1", "stale": true})
	ref := child

	Propagate(parent, child)

	assert.Same(t, ref, child)
	assert.Equal(t, map[string]any{"plan": "v2"}, child.ToMap())
}

func TestPropagateUp_ChildWrittenKeysWin(t *testing.T) {
	parent := core.StateBagFromMap(map[string]any{"plan": "v2", "owner": "lead"})
	child := core.NewStateBag()
	Propagate(parent, child)

	// The coordinator changes owner while the member works.
	parent.Set("owner", "lead-2")
	parent.ResetWritten()

	child.Set("plan", "v3")
	child.Set("notes", "done")

	PropagateUp(parent, child)

	assert.Equal(t, map[string]any{"plan": "v3", "owner": "lead-2", "notes": "done"}, parent.ToMap())
	assert.ElementsMatch(t, []string{"plan", "notes"}, parent.WrittenKeys())
	assert.Empty(t, child.WrittenKeys())
}

func TestPropagateUp_NilSafe(t *testing.T) {
	require.NotPanics(t, func() {
		PropagateUp(nil, core.NewStateBag())
		PropagateUp(core.NewStateBag(), nil)
		Propagate(nil, nil)
	})
}
