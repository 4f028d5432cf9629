package core

import (
	"context"
	"errors"

	"github.com/hupe1980/agentrun/logging"
)

// TargetInfo identifies the agent or team driving a run.
type TargetInfo struct {
	Name string
	Kind string // "agent" or "team"
}

// DelegateFunc runs task on the named member of a team and returns the
// member's final answer.
type DelegateFunc func(ctx context.Context, member, task string) (string, error)

// ErrNoTeamState is returned when a tool touches team-shared state outside a team.
var ErrNoTeamState = errors.New("no team-shared state in this run")

// RunContext is the per-turn execution scope passed through the run loop.
// It aggregates:
//   - the cancellation Context of the turn
//   - the RunRecord being driven
//   - the target's local StateBag and, inside teams, the team-shared bag
//   - the call limiter and an optional delegation hook
type RunContext struct {
	Context   context.Context
	Record    *RunRecord
	Target    TargetInfo
	State     *StateBag
	TeamState *StateBag
	Limiter   *CallLimiter
	Delegate  DelegateFunc

	*loggerAdapter
}

// NewRunContext constructs a RunContext. A nil state bag is replaced by an
// empty one; teamState stays nil outside teams.
func NewRunContext(
	ctx context.Context,
	rec *RunRecord,
	target TargetInfo,
	state, teamState *StateBag,
	limiter *CallLimiter,
	logger logging.Logger,
) *RunContext {
	if state == nil {
		state = NewStateBag()
	}
	if limiter == nil {
		limiter = NewCallLimiter(0, 0, rec.ModelCalls, rec.ToolCalls)
	}
	return &RunContext{
		Context:       ctx,
		Record:        rec,
		Target:        target,
		State:         state,
		TeamState:     teamState,
		Limiter:       limiter,
		loggerAdapter: newLoggerAdapter(logger, "run_id", rec.ID, "session_id", rec.SessionID),
	}
}

// Done returns a channel closed when the turn is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error, if any.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// RunID returns the id of the run.
func (rc *RunContext) RunID() string { return rc.Record.ID }

// SessionID returns the session of the run.
func (rc *RunContext) SessionID() string { return rc.Record.SessionID }

// UserID returns the user of the run.
func (rc *RunContext) UserID() string { return rc.Record.UserID }

// GetState reads from the local bag.
func (rc *RunContext) GetState(k string) (any, bool) { return rc.State.Get(k) }

// SetState writes to the local bag.
func (rc *RunContext) SetState(k string, v any) { rc.State.Set(k, v) }

// WithContext returns a shallow copy bound to ctx.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx
	return &c
}
