package testutil

import (
	"testing"

	"github.com/hupe1980/agentrun/core"
)

// Drain reads every event until the channel is closed.
func Drain(ch <-chan core.Event) []core.Event {
	var out []core.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// Kinds returns the kinds of events in order.
func Kinds(events []core.Event) []core.EventKind {
	out := make([]core.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

// IndexOf returns the position of the first event of kind for which match
// returns true, or -1. A nil match accepts every event of that kind.
func IndexOf(events []core.Event, kind core.EventKind, match func(core.Event) bool) int {
	for i, ev := range events {
		if ev.Kind == kind && (match == nil || match(ev)) {
			return i
		}
	}
	return -1
}

// ForCall matches invocation events of the given call id.
func ForCall(callID string) func(core.Event) bool {
	return func(ev core.Event) bool {
		inv, ok := ev.Invocation()
		return ok && inv.ID == callID
	}
}

// Last returns the final event and fails the test when there is none.
func Last(t *testing.T, events []core.Event) core.Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events")
	}
	return events[len(events)-1]
}
