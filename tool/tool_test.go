package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testToolContext(t *testing.T, team bool, callID, toolName string) (*core.RunContext, *core.ToolContext) {
	t.Helper()

	rec := core.NewRunRecord("sess-1", "user-1", "agent")
	var teamState *core.StateBag
	if team {
		teamState = core.NewStateBag()
	}
	rc := core.NewRunContext(context.Background(), rec, core.TargetInfo{Name: "agent", Kind: "agent"}, core.NewStateBag(), teamState, nil, logging.NoOpLogger{})

	return rc, core.NewToolContext(rc, &core.ToolInvocation{ID: callID, ToolName: toolName})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	_, tc := testToolContext(t, false, "fc1", "sum")
	result, err := sumTool.Call(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
	assert.Equal(t, core.GatingNormal, sumTool.Declaration().Gating)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})

	_, tc := testToolContext(t, false, "fc2", "test")
	_, err := tTool.Call(tc, map[string]any{})

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, tc := testToolContext(t, false, "fc3", "fail")
	_, err := execTool.Call(tc, map[string]any{})

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_CustomToolErrorForwarded(t *testing.T) {
	custom := NewToolError("x", "quota exceeded", "QUOTA")
	tl := NewFunctionTool("x", "X", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, custom
	})

	_, tc := testToolContext(t, false, "fc", "x")
	_, err := tl.Call(tc, nil)
	assert.Same(t, custom, err)
}

func TestFunctionTool_GatingOptions(t *testing.T) {
	noop := func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil }

	assert.Equal(t, core.GatingRequiresConfirmation, NewFunctionTool("a", "", nil, noop, WithConfirmation()).Declaration().Gating)
	assert.Equal(t, core.GatingRequiresExternalExecution, NewFunctionTool("b", "", nil, nil, WithExternalExecution()).Declaration().Gating)

	decl := NewFunctionTool("c", "", nil, noop, WithUserInput("temperature")).Declaration()
	assert.Equal(t, core.GatingRequiresUserInput, decl.Gating)
	assert.Equal(t, []string{"temperature"}, decl.UserInputFields)
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type args struct {
		City string `json:"city" description:"City"`
	}
	tl := NewFunctionToolFromStruct("weather", "Weather", args{}, func(_ *core.ToolContext, a map[string]any) (any, error) {
		return "sunny in " + a["city"].(string), nil
	})

	_, tc := testToolContext(t, false, "fc", "weather")
	out, err := tl.Call(tc, map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in Oslo", out)
}

// -------------------- Set --------------------

func TestSet(t *testing.T) {
	a := NewGetStateTool(ScopeLocal)
	b := NewSetStateTool(ScopeLocal)

	s, err := NewSet(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	got, ok := s.Get("set_state")
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, []Tool{a, b}, s.List())

	_, err = NewSet(a, a)
	assert.Error(t, err)

	var nilSet *Set
	_, ok = nilSet.Get("x")
	assert.False(t, ok)
}

// -------------------- State tools --------------------

func TestStateTools_Local(t *testing.T) {
	rc, tc := testToolContext(t, false, "fc-set", "set_state")

	res, err := NewSetStateTool(ScopeLocal).Call(tc, map[string]any{"key": "foo", "value": "bar"})
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]any)["success"])
	assert.Equal(t, []string{"foo"}, rc.State.WrittenKeys())

	res, err = NewGetStateTool(ScopeLocal).Call(tc, map[string]any{"key": "foo"})
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Equal(t, true, m["exists"])
	assert.Equal(t, "bar", m["value"])
}

func TestStateTools_TeamScope(t *testing.T) {
	_, plain := testToolContext(t, false, "fc", "set_team_state")
	_, err := NewSetStateTool(ScopeTeam).Call(plain, map[string]any{"key": "k", "value": 1})
	assert.True(t, errors.Is(err, core.ErrNoTeamState))

	rc, tc := testToolContext(t, true, "fc", "set_team_state")
	_, err = NewSetStateTool(ScopeTeam).Call(tc, map[string]any{"key": "k", "value": 1.0})
	require.NoError(t, err)

	v, ok := rc.TeamState.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

// -------------------- Delegate --------------------

func TestDelegateTool(t *testing.T) {
	d := NewDelegateTool([]Member{{Name: "researcher", Description: "finds facts"}, {Name: "writer"}})
	assert.Equal(t, DelegateToolName, d.Name())
	assert.Contains(t, d.Description(), "researcher: finds facts")

	rc, tc := testToolContext(t, true, "fc", DelegateToolName)
	rc.Delegate = func(_ context.Context, member, task string) (string, error) {
		return member + " did " + task, nil
	}

	out, err := d.Call(tc, map[string]any{"member": "writer", "task": "a poem"})
	require.NoError(t, err)
	assert.Equal(t, "writer did a poem", out)

	_, err = d.Call(tc, map[string]any{"member": "nobody", "task": "x"})
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeValidation, toolErr.Code)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
