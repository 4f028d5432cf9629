package testutil

import (
	"time"

	"github.com/hupe1980/agentrun/core"
)

// SessionBuilder provides a fluent helper for constructing session records.
//
//	rec := NewSessionBuilder("s1").User("u1").State("k", "v").Build()
type SessionBuilder struct {
	rec *core.SessionRecord
}

// NewSessionBuilder starts a record with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{rec: core.NewSessionRecord(id, "", "")}
}

// User sets the user id (chainable).
func (b *SessionBuilder) User(id string) *SessionBuilder { b.rec.UserID = id; return b }

// Entity sets the entity id (chainable).
func (b *SessionBuilder) Entity(id string) *SessionBuilder { b.rec.EntityID = id; return b }

// State sets a local state key without marking it written (chainable).
func (b *SessionBuilder) State(k string, v any) *SessionBuilder {
	b.rec.State.SetReserved(k, v)
	return b
}

// TeamState sets a team-shared state key (chainable).
func (b *SessionBuilder) TeamState(k string, v any) *SessionBuilder {
	if b.rec.TeamState == nil {
		b.rec.TeamState = core.NewStateBag()
	}
	b.rec.TeamState.SetReserved(k, v)
	return b
}

// Run appends a run record (chainable).
func (b *SessionBuilder) Run(rec *core.RunRecord) *SessionBuilder {
	b.rec.PutRun(rec)
	return b
}

// CreatedAt overrides the creation time (chainable).
func (b *SessionBuilder) CreatedAt(t time.Time) *SessionBuilder {
	b.rec.CreatedAt = t
	return b
}

// Build returns the record.
func (b *SessionBuilder) Build() *core.SessionRecord { return b.rec }

// CompletedRun returns a completed run record with a user/assistant exchange.
func CompletedRun(sessionID, question, answer string) *core.RunRecord {
	rec := core.NewRunRecord(sessionID, "", "agent")
	_ = rec.Transition(core.RunStatusRunning)
	rec.AppendMessage(core.NewUserMessage(question))
	rec.AppendMessage(core.NewAssistantMessage("agent", answer))
	_ = rec.Transition(core.RunStatusCompleted)
	return rec
}
