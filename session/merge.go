package session

import "github.com/hupe1980/agentrun/core"

// Reconcile returns a new bag holding loaded plus every key of current that
// loaded lacks. current_session_id is set to sessionID afterwards.
//
// A nil loaded bag means nothing was persisted for the session; the result
// is then a copy of current.
func Reconcile(current, loaded *core.StateBag, sessionID string) *core.StateBag {
	var out *core.StateBag
	if loaded != nil {
		out = loaded.Clone()
	} else {
		out = core.NewStateBag()
	}

	if current != nil {
		current.Range(func(k string, v any) bool {
			if _, ok := out.Get(k); !ok {
				out.SetReserved(k, v)
			}
			return true
		})
	}

	out.SetReserved(core.StateKeySessionID, sessionID)

	return out
}

// Propagate overwrites child with parent. The child keeps its identity so
// agents holding it see the update.
func Propagate(parent, child *core.StateBag) {
	if parent == nil || child == nil {
		return
	}
	child.ReplaceWith(parent)
}

// PropagateUp merges child back into parent: keys the child wrote since the
// last Propagate overwrite the parent's values, keys missing in the parent
// are added, and every other parent value is kept. Overwritten keys count as
// written on the parent so they keep travelling up nested teams.
func PropagateUp(parent, child *core.StateBag) {
	if parent == nil || child == nil || parent == child {
		return
	}

	written := map[string]struct{}{}
	for _, k := range child.WrittenKeys() {
		written[k] = struct{}{}
	}

	child.Range(func(k string, v any) bool {
		if _, ok := written[k]; ok {
			parent.Set(k, v)
			return true
		}
		if _, ok := parent.Get(k); !ok {
			parent.SetReserved(k, v)
		}
		return true
	})

	child.ResetWritten()
}
