package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
)

// TeamOptions configures a Team.
type TeamOptions struct {
	Description    string
	Instruction    Instruction
	Tools          []tool.Tool
	ResponseFormat *model.ResponseFormat

	// State seeds the team's local bag; SharedState seeds the bag shared
	// with all members.
	State       map[string]any
	SharedState map[string]any

	StateTools bool
}

// Team is a leader model that delegates to members. Members are agents or
// nested teams; each belongs to at most one team.
type Team struct {
	name           string
	description    string
	leader         model.Model
	instruction    Instruction
	tools          *tool.Set
	responseFormat *model.ResponseFormat

	members []Target
	byName  map[string]Target

	state  *core.StateBag
	shared *core.StateBag
	parent string
}

// NewTeam creates a team led by leader. Member names must be unique.
func NewTeam(name string, leader model.Model, members []Target, optFns ...func(o *TeamOptions)) (*Team, error) {
	if name == "" {
		return nil, fmt.Errorf("team name must not be empty")
	}
	if leader == nil {
		return nil, fmt.Errorf("team %s: leader model must not be nil", name)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("team %s: at least one member is required", name)
	}

	opts := TeamOptions{
		Description: fmt.Sprintf("Team %s", name),
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, the coordinator of a team.", name)),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	t := &Team{
		name:           name,
		description:    opts.Description,
		leader:         leader,
		instruction:    opts.Instruction,
		responseFormat: opts.ResponseFormat,
		byName:         make(map[string]Target, len(members)),
		state:          core.NewStateBag(),
		shared:         core.NewStateBag(),
	}
	if len(opts.State) > 0 {
		t.state = core.StateBagFromMap(opts.State)
	}
	if len(opts.SharedState) > 0 {
		t.shared = core.StateBagFromMap(opts.SharedState)
	}

	infos := make([]tool.Member, 0, len(members))
	for _, m := range members {
		if m == nil {
			return nil, fmt.Errorf("team %s: nil member", name)
		}
		if _, dup := t.byName[m.Name()]; dup {
			return nil, fmt.Errorf("team %s: duplicate member %s", name, m.Name())
		}
		if err := join(m, name); err != nil {
			return nil, fmt.Errorf("team %s: %w", name, err)
		}
		t.byName[m.Name()] = m
		t.members = append(t.members, m)
		infos = append(infos, tool.Member{Name: m.Name(), Description: m.Description()})
	}

	tools := append([]tool.Tool{}, opts.Tools...)
	tools = append(tools, tool.NewDelegateTool(infos))
	if opts.StateTools {
		tools = append(tools,
			tool.NewGetStateTool(tool.ScopeLocal), tool.NewSetStateTool(tool.ScopeLocal),
			tool.NewGetStateTool(tool.ScopeTeam), tool.NewSetStateTool(tool.ScopeTeam),
		)
	}

	set, err := tool.NewSet(tools...)
	if err != nil {
		return nil, fmt.Errorf("team %s: %w", name, err)
	}
	t.tools = set

	return t, nil
}

func join(m Target, team string) error {
	switch m := m.(type) {
	case *Agent:
		return m.joinTeam(team)
	case *Team:
		if m.parent != "" {
			return fmt.Errorf("team %s already belongs to team %s", m.name, m.parent)
		}
		m.parent = team
		return nil
	default:
		return nil
	}
}

// Name returns the team name.
func (t *Team) Name() string { return t.name }

// Description returns the team description.
func (t *Team) Description() string { return t.description }

// Kind returns KindTeam.
func (t *Team) Kind() string { return KindTeam }

// Model returns the leader model.
func (t *Team) Model() model.Model { return t.leader }

// Tools returns the leader's tools, including the delegation tool.
func (t *Team) Tools() *tool.Set { return t.tools }

// Instructions renders the leader prompt followed by the member roster.
func (t *Team) Instructions(rc *core.RunContext) (string, error) {
	text, err := t.instruction.Resolve(rc)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(text)
	fmt.Fprintf(&b, "\n\nDelegate work with the %s tool. Team members:", tool.DelegateToolName)
	for _, m := range t.members {
		fmt.Fprintf(&b, "\n- %s (%s): %s", m.Name(), m.Kind(), m.Description())
	}
	return b.String(), nil
}

// ResponseFormat returns the requested structured output, if any.
func (t *Team) ResponseFormat() *model.ResponseFormat { return t.responseFormat }

// State returns the team's local bag.
func (t *Team) State() *core.StateBag { return t.state }

// SharedState returns the bag shared with every member.
func (t *Team) SharedState() *core.StateBag { return t.shared }

// Member looks up a direct member by name.
func (t *Team) Member(name string) (Target, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// Members returns the direct members in declaration order.
func (t *Team) Members() []Target {
	out := make([]Target, len(t.members))
	copy(out, t.members)
	return out
}

// Find searches the team tree depth-first for a target named name.
func (t *Team) Find(name string) (Target, bool) {
	if t.name == name {
		return t, true
	}
	for _, m := range t.members {
		if m.Name() == name {
			return m, true
		}
		if sub, ok := m.(*Team); ok {
			if found, ok := sub.Find(name); ok {
				return found, true
			}
		}
	}
	return nil, false
}
