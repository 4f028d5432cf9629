package agent

import (
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
)

// Target kinds.
const (
	KindAgent = "agent"
	KindTeam  = "team"
)

// Target is anything the runner can drive through a turn.
type Target interface {
	Name() string
	Description() string
	Kind() string

	// Model generates the target's responses.
	Model() model.Model

	// Tools is the tool set offered to the model on every call.
	Tools() *tool.Set

	// Instructions renders the system prompt for the current turn.
	Instructions(rc *core.RunContext) (string, error)

	// ResponseFormat is the structured output requested from the model, or nil.
	ResponseFormat() *model.ResponseFormat

	// State is the target's local state bag. Never nil.
	State() *core.StateBag

	// SharedState is the team-shared bag: a team's own bag, or for an agent
	// the copy it receives from its team. Nil for a standalone agent.
	SharedState() *core.StateBag
}

// Delegator is a target with members that tasks can be delegated to.
type Delegator interface {
	Target
	Member(name string) (Target, bool)
	Members() []Target
}

// Info returns the identity of t as recorded on runs.
func Info(t Target) core.TargetInfo {
	return core.TargetInfo{Name: t.Name(), Kind: t.Kind()}
}
