package agent

import (
	"fmt"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
)

// Options configures an Agent.
type Options struct {
	Description    string
	Instruction    Instruction
	Tools          []tool.Tool
	ResponseFormat *model.ResponseFormat

	// State seeds the local state bag.
	State map[string]any

	// StateTools adds get_state/set_state (and the team variants once the
	// agent joins a team).
	StateTools bool
}

// Agent is a single model with tools and a local state bag.
type Agent struct {
	name           string
	description    string
	llm            model.Model
	instruction    Instruction
	tools          *tool.Set
	responseFormat *model.ResponseFormat
	stateTools     bool

	state  *core.StateBag
	shared *core.StateBag // set when the agent joins a team
	team   string
}

// New creates an agent. Tool names must be unique.
func New(name string, llm model.Model, optFns ...func(o *Options)) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent name must not be empty")
	}
	if llm == nil {
		return nil, fmt.Errorf("agent %s: model must not be nil", name)
	}

	opts := Options{
		Description: fmt.Sprintf("Agent %s", name),
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	tools := append([]tool.Tool{}, opts.Tools...)
	if opts.StateTools {
		tools = append(tools, tool.NewGetStateTool(tool.ScopeLocal), tool.NewSetStateTool(tool.ScopeLocal))
	}

	set, err := tool.NewSet(tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	state := core.NewStateBag()
	if len(opts.State) > 0 {
		state = core.StateBagFromMap(opts.State)
	}

	return &Agent{
		name:           name,
		description:    opts.Description,
		llm:            llm,
		instruction:    opts.Instruction,
		tools:          set,
		responseFormat: opts.ResponseFormat,
		stateTools:     opts.StateTools,
		state:          state,
	}, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns what the agent does; teams show it to their leader.
func (a *Agent) Description() string { return a.description }

// Kind returns KindAgent.
func (a *Agent) Kind() string { return KindAgent }

// Model returns the agent's model.
func (a *Agent) Model() model.Model { return a.llm }

// Tools returns the agent's tool set.
func (a *Agent) Tools() *tool.Set { return a.tools }

// Instructions renders the agent's system prompt.
func (a *Agent) Instructions(rc *core.RunContext) (string, error) {
	return a.instruction.Resolve(rc)
}

// ResponseFormat returns the requested structured output, if any.
func (a *Agent) ResponseFormat() *model.ResponseFormat { return a.responseFormat }

// State returns the local state bag.
func (a *Agent) State() *core.StateBag { return a.state }

// SharedState returns the team-shared bag, nil outside a team.
func (a *Agent) SharedState() *core.StateBag { return a.shared }

// Team returns the name of the team the agent belongs to.
func (a *Agent) Team() string { return a.team }

func (a *Agent) joinTeam(team string) error {
	if a.team != "" {
		return fmt.Errorf("agent %s already belongs to team %s", a.name, a.team)
	}

	a.team = team
	a.shared = core.NewStateBag()

	if a.stateTools {
		set, err := tool.NewSet(append(a.tools.List(),
			tool.NewGetStateTool(tool.ScopeTeam),
			tool.NewSetStateTool(tool.ScopeTeam),
		)...)
		if err != nil {
			return err
		}
		a.tools = set
	}

	return nil
}
