package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind tags a lifecycle event. The vocabulary is fixed.
type EventKind string

const (
	EventRunStarted            EventKind = "run-started"
	EventRunContinued          EventKind = "run-continued"
	EventModelDelta            EventKind = "model-delta"
	EventToolCallStarted       EventKind = "tool-call-started"
	EventToolCallCompleted     EventKind = "tool-call-completed"
	EventMemoryUpdateStarted   EventKind = "memory-update-started"
	EventMemoryUpdateCompleted EventKind = "memory-update-completed"
	EventRunPaused             EventKind = "run-paused"
	EventRunCompleted          EventKind = "run-completed"
	EventRunError              EventKind = "run-error"
	EventRunCancelled          EventKind = "run-cancelled"
)

// IsTerminal reports whether the kind closes the event sequence of a
// start or resume call.
func (k EventKind) IsTerminal() bool {
	switch k {
	case EventRunPaused, EventRunCompleted, EventRunError, EventRunCancelled:
		return true
	case EventRunStarted, EventRunContinued, EventModelDelta, EventToolCallStarted,
		EventToolCallCompleted, EventMemoryUpdateStarted, EventMemoryUpdateCompleted:
		return false
	default:
		return false
	}
}

// Payload is the event-specific body. The set of implementations is closed.
type Payload interface{ isPayload() }

// DeltaPayload carries an incremental content fragment of the assistant
// message at MessageIndex in the run history.
type DeltaPayload struct {
	MessageIndex int    `json:"message_index"`
	Content      string `json:"content"`
}

func (DeltaPayload) isPayload() {}

// InvocationPayload carries a snapshot of a tool invocation.
type InvocationPayload struct {
	Invocation *ToolInvocation `json:"invocation"`
}

func (InvocationPayload) isPayload() {}

// RecordPayload carries a snapshot of the run record.
type RecordPayload struct {
	Record *RunRecord `json:"record"`
	// Err is the failure that ended an errored or cancelled run.
	Err error `json:"-"`
}

func (RecordPayload) isPayload() {}

// MemoryPayload describes a memory extraction step.
type MemoryPayload struct {
	UserID   string `json:"user_id"`
	Memories int    `json:"memories"`
	Error    string `json:"error,omitempty"`
}

func (MemoryPayload) isPayload() {}

// Event is one entry of the ordered lifecycle stream. It is immutable once
// emitted; payload snapshots are copies.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id,omitempty"`
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload,omitempty"`
}

// NewEvent creates an event for the run described by rec.
func NewEvent(kind EventKind, rec *RunRecord, payload Payload) Event {
	e := Event{
		ID:        NewID(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if rec != nil {
		e.RunID = rec.ID
		e.SessionID = rec.SessionID
		e.Author = rec.Target
	}
	return e
}

// NewRecordEvent creates an event carrying a snapshot of rec.
func NewRecordEvent(kind EventKind, rec *RunRecord) Event {
	return NewEvent(kind, rec, RecordPayload{Record: rec.Clone()})
}

// NewTerminalEvent creates a terminal event carrying a snapshot of rec and
// the error that ended the run, if any.
func NewTerminalEvent(kind EventKind, rec *RunRecord, err error) Event {
	return NewEvent(kind, rec, RecordPayload{Record: rec.Clone(), Err: err})
}

// NewInvocationEvent creates an event carrying a snapshot of inv.
func NewInvocationEvent(kind EventKind, rec *RunRecord, inv *ToolInvocation) Event {
	return NewEvent(kind, rec, InvocationPayload{Invocation: inv.Clone()})
}

// NewDeltaEvent creates a model-delta event.
func NewDeltaEvent(rec *RunRecord, messageIndex int, content string) Event {
	return NewEvent(EventModelDelta, rec, DeltaPayload{MessageIndex: messageIndex, Content: content})
}

// Delta returns the delta payload, if any.
func (e Event) Delta() (DeltaPayload, bool) {
	p, ok := e.Payload.(DeltaPayload)
	return p, ok
}

// Invocation returns the invocation snapshot, if any.
func (e Event) Invocation() (*ToolInvocation, bool) {
	p, ok := e.Payload.(InvocationPayload)
	return p.Invocation, ok
}

// Record returns the record snapshot, if any.
func (e Event) Record() (*RunRecord, bool) {
	p, ok := e.Payload.(RecordPayload)
	return p.Record, ok
}

// Err returns the error carried by a terminal event, nil otherwise.
func (e Event) Err() error {
	p, _ := e.Payload.(RecordPayload)
	return p.Err
}

// NewID generates a unique identifier for runs, events and memories.
func NewID() string { return uuid.NewString() }
