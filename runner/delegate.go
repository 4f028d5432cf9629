package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/session"
)

// delegate runs task on a member of the machine's team as a nested run on
// the same runner. The team-shared bag is copied down before the run and the
// keys the member wrote are merged back up afterwards. Delegations to the
// same member are serialized.
func (m *machine) delegate(ctx context.Context, memberName, task string) (string, error) {
	team, ok := m.target.(agent.Delegator)
	if !ok {
		return "", fmt.Errorf("target %s has no members", m.target.Name())
	}

	member, ok := team.Member(memberName)
	if !ok {
		return "", fmt.Errorf("team %s has no member %q", team.Name(), memberName)
	}

	lock := m.runner.memberLock(member)
	lock.Lock()
	defer lock.Unlock()

	parent := m.rc.Record

	ctx, span := startSpan(ctx, m.runner.tracer, spanDelegate,
		attribute.String("team", team.Name()),
		attribute.String("member", member.Name()),
		attribute.String("run.id", parent.ID),
	)

	session.Propagate(team.SharedState(), member.SharedState())
	member.State().SetReserved(core.StateKeySessionID, parent.SessionID)
	if parent.UserID != "" {
		member.State().SetReserved(core.StateKeyUserID, parent.UserID)
	}

	rec := core.NewRunRecord(parent.SessionID, parent.UserID, member.Name())
	if err := rec.Transition(core.RunStatusRunning); err != nil {
		endSpan(span, err, "delegation failed")
		return "", err
	}

	child := m.runner.newMachine(member, rec, nil, nil)
	child.input = task
	child.ctx, child.release = m.runner.activate(ctx, rec)

	m.rc.LogInfo("runner.team.delegate", "team", team.Name(), "member", member.Name(), "member_run_id", rec.ID)

	out, err := child.drive(child.start)

	session.PropagateUp(team.SharedState(), member.SharedState())

	switch {
	case err != nil:
		err = fmt.Errorf("member %s failed: %w", member.Name(), err)
	case out.IsPaused():
		names := make([]string, 0, len(out.PendingIDs))
		for _, inv := range out.Pending() {
			names = append(names, inv.ToolName)
		}
		err = fmt.Errorf("member %s paused on gated tool call(s) %s, which cannot be resolved inside a delegated task",
			member.Name(), strings.Join(names, ", "))
	}

	endSpan(span, err, "delegation failed")
	if err != nil {
		return "", err
	}

	return out.Content(), nil
}

func (r *Runner) memberLock(member agent.Target) *sync.Mutex {
	lock, _ := r.delegations.LoadOrStore(member, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
