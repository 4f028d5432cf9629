package agent

import (
	"testing"

	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgent(t *testing.T, name string, optFns ...func(o *Options)) *Agent {
	t.Helper()
	a, err := New(name, model.NewScriptedModel(name), optFns...)
	require.NoError(t, err)
	return a
}

func TestNewTeam(t *testing.T) {
	researcher := newAgent(t, "researcher", func(o *Options) { o.Description = "finds facts"; o.StateTools = true })
	writer := newAgent(t, "writer")

	team, err := NewTeam("crew", model.NewScriptedModel("leader"), []Target{researcher, writer}, func(o *TeamOptions) {
		o.SharedState = map[string]any{"topic": "go"}
	})
	require.NoError(t, err)

	assert.Equal(t, KindTeam, team.Kind())
	assert.Len(t, team.Members(), 2)

	m, ok := team.Member("researcher")
	require.True(t, ok)
	assert.Same(t, researcher, m)

	_, ok = team.Tools().Get(tool.DelegateToolName)
	assert.True(t, ok)

	v, _ := team.SharedState().Get("topic")
	assert.Equal(t, "go", v)

	// members get their own shared bag, filled by delegation
	require.NotNil(t, researcher.SharedState())
	assert.NotSame(t, team.SharedState(), researcher.SharedState())
	assert.Equal(t, "crew", researcher.Team())

	_, ok = researcher.Tools().Get("set_team_state")
	assert.True(t, ok, "state tools gain team scope inside a team")
	_, ok = writer.Tools().Get("set_team_state")
	assert.False(t, ok)
}

func TestNewTeam_Instructions(t *testing.T) {
	team, err := NewTeam("crew", model.NewScriptedModel("leader"), []Target{
		newAgent(t, "researcher", func(o *Options) { o.Description = "finds facts" }),
	})
	require.NoError(t, err)

	text, err := team.Instructions(nil)
	require.NoError(t, err)
	assert.Contains(t, text, "coordinator")
	assert.Contains(t, text, tool.DelegateToolName)
	assert.Contains(t, text, "- researcher (agent): finds facts")
}

func TestNewTeam_Validation(t *testing.T) {
	leader := model.NewScriptedModel("leader")

	_, err := NewTeam("crew", leader, nil)
	assert.Error(t, err)

	_, err = NewTeam("crew", nil, []Target{newAgent(t, "a")})
	assert.Error(t, err)

	a := newAgent(t, "a")
	_, err = NewTeam("crew", leader, []Target{a, newAgent(t, "a")})
	assert.Error(t, err)

	b := newAgent(t, "b")
	_, err = NewTeam("one", leader, []Target{b})
	require.NoError(t, err)
	_, err = NewTeam("two", leader, []Target{b})
	assert.Error(t, err, "a member belongs to one team")
}

func TestTeam_NestedFind(t *testing.T) {
	leaf := newAgent(t, "leaf")
	inner, err := NewTeam("inner", model.NewScriptedModel("l1"), []Target{leaf})
	require.NoError(t, err)
	outer, err := NewTeam("outer", model.NewScriptedModel("l2"), []Target{inner, newAgent(t, "sibling")})
	require.NoError(t, err)

	found, ok := outer.Find("leaf")
	require.True(t, ok)
	assert.Same(t, leaf, found)

	_, ok = outer.Find("nobody")
	assert.False(t, ok)

	var _ Delegator = outer
}
