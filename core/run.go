package core

import (
	"fmt"
	"slices"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

var allowedRunStatusTransitions = map[RunStatus]map[RunStatus]struct{}{
	"": {
		RunStatusRunning: {},
	},
	RunStatusRunning: {
		RunStatusRunning:   {},
		RunStatusPaused:    {},
		RunStatusCompleted: {},
		RunStatusError:     {},
		RunStatusCancelled: {},
	},
	RunStatusPaused: {
		RunStatusRunning: {},
	},
	RunStatusCompleted: {},
	RunStatusError:     {},
	RunStatusCancelled: {},
}

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusError, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// ValidateTransition checks a status change against the transition table.
func ValidateTransition(from, to RunStatus) error {
	allowed, ok := allowedRunStatusTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source status %q", ErrInvalidRunStateTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRunStateTransition, from, to)
	}
	return nil
}

// Usage accumulates token counts reported by the model provider.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Add sums other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// RunRecord is the complete state of one turn. Between suspension and
// resumption it is owned by the caller; the engine never mutates a paused
// record on its own.
type RunRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Target    string `json:"target"`

	Status      RunStatus         `json:"status"`
	Messages    []Message         `json:"messages"`
	Invocations []*ToolInvocation `json:"invocations,omitempty"`
	PendingIDs  []string          `json:"pending_ids,omitempty"`
	Error       string            `json:"error,omitempty"`

	Usage      Usage `json:"usage"`
	ModelCalls int   `json:"model_calls"`
	ToolCalls  int   `json:"tool_calls"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRunRecord returns a record that has not entered any state yet.
func NewRunRecord(sessionID, userID, target string) *RunRecord {
	now := time.Now().UTC()
	return &RunRecord{
		ID:        NewID(),
		SessionID: sessionID,
		UserID:    userID,
		Target:    target,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the record to status to, enforcing the transition table.
func (r *RunRecord) Transition(to RunStatus) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return fmt.Errorf("run %s: %w", r.ID, err)
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendMessage adds msg to the turn history.
func (r *RunRecord) AppendMessage(msg Message) {
	r.Messages = append(r.Messages, msg)
	r.UpdatedAt = time.Now().UTC()
}

// Invocation looks up an invocation by id.
func (r *RunRecord) Invocation(id string) (*ToolInvocation, bool) {
	for _, inv := range r.Invocations {
		if inv.ID == id {
			return inv, true
		}
	}
	return nil, false
}

// Pending returns the invocations the run is paused on, in invocation order.
func (r *RunRecord) Pending() []*ToolInvocation {
	out := make([]*ToolInvocation, 0, len(r.PendingIDs))
	for _, inv := range r.Invocations {
		if slices.Contains(r.PendingIDs, inv.ID) {
			out = append(out, inv)
		}
	}
	return out
}

// IsPaused reports whether the run waits for caller resolution.
func (r *RunRecord) IsPaused() bool { return r.Status == RunStatusPaused }

// Content returns the content of the last assistant message.
func (r *RunRecord) Content() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleAssistant {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Clone deep-copies the record.
func (r *RunRecord) Clone() *RunRecord {
	c := *r
	c.Messages = CloneMessages(r.Messages)
	if r.Invocations != nil {
		c.Invocations = make([]*ToolInvocation, len(r.Invocations))
		for i, inv := range r.Invocations {
			c.Invocations[i] = inv.Clone()
		}
	}
	if r.PendingIDs != nil {
		c.PendingIDs = append([]string(nil), r.PendingIDs...)
	}
	return &c
}
