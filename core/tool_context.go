package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrun/logging"
)

// ToolContext is the handle a tool receives for one invocation. Through it
// the tool reads and writes the session state of the agent or team that
// called it; everything else about the run stays out of reach.
type ToolContext struct {
	runCtx *RunContext
	callID string
	tool   string

	*loggerAdapter
}

// NewToolContext binds a tool context to a run and an invocation.
func NewToolContext(runCtx *RunContext, inv *ToolInvocation) *ToolContext {
	return &ToolContext{
		runCtx:        runCtx,
		callID:        inv.ID,
		tool:          inv.ToolName,
		loggerAdapter: runCtx.loggerAdapter.with("tool", inv.ToolName, "call_id", inv.ID),
	}
}

// Context returns the context of the invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunID returns the run id.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID() }

// SessionID returns the session id.
func (tc *ToolContext) SessionID() string { return tc.runCtx.SessionID() }

// UserID returns the user id, if known.
func (tc *ToolContext) UserID() string { return tc.runCtx.UserID() }

// CallID returns the id of the invocation.
func (tc *ToolContext) CallID() string { return tc.callID }

// ToolName returns the name of the invoked tool.
func (tc *ToolContext) ToolName() string { return tc.tool }

// TargetName returns the name of the agent or team running the tool.
func (tc *ToolContext) TargetName() string { return tc.runCtx.Target.Name }

// Logger returns the logger of the run.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// State returns the local session state bag.
func (tc *ToolContext) State() *StateBag { return tc.runCtx.State }

// GetState reads a key from the local session state.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.runCtx.State.Get(k) }

// SetState writes a key to the local session state.
func (tc *ToolContext) SetState(k string, v any) {
	tc.runCtx.State.Set(k, v)
	tc.LogDebug("tool.state.set", "key", k)
}

// TeamState returns the team-shared bag, or nil outside teams.
func (tc *ToolContext) TeamState() *StateBag { return tc.runCtx.TeamState }

// GetTeamState reads a key from the team-shared state.
func (tc *ToolContext) GetTeamState(k string) (any, bool) {
	if tc.runCtx.TeamState == nil {
		return nil, false
	}
	return tc.runCtx.TeamState.Get(k)
}

// SetTeamState writes a key to the team-shared state.
func (tc *ToolContext) SetTeamState(k string, v any) error {
	if tc.runCtx.TeamState == nil {
		return ErrNoTeamState
	}
	tc.runCtx.TeamState.Set(k, v)
	tc.LogDebug("tool.team_state.set", "key", k)
	return nil
}

// Delegate hands task to a team member and waits for its answer.
func (tc *ToolContext) Delegate(member, task string) (string, error) {
	if tc.runCtx.Delegate == nil {
		return "", fmt.Errorf("target %s cannot delegate", tc.TargetName())
	}
	tc.LogInfo("tool.delegate.request", "member", member)
	return tc.runCtx.Delegate(tc.runCtx.Context, member, task)
}
