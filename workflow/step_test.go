package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/runner"
	"github.com/hupe1980/agentrun/tool"
)

// MockStep is a testify mock implementing Step.
type MockStep struct {
	mock.Mock
	name string
}

func NewMockStep(name string) *MockStep { return &MockStep{name: name} }

func (m *MockStep) Name() string { return m.name }

func (m *MockStep) Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error) {
	args := m.Called(ctx, in)
	outs, _ := args.Get(0).([]*StepOutput)
	return outs, args.Error(1)
}

// textStep returns a function step that answers with fn's text.
func textStep(name string, fn func(in *StepInput) string) *FuncStep {
	return NewFuncStep(name, func(_ context.Context, in *StepInput) (*StepOutput, error) {
		return &StepOutput{Content: fn(in)}, nil
	})
}

func newRunner(t *testing.T, name string, llm model.Model, tools ...tool.Tool) *runner.Runner {
	t.Helper()
	a, err := agent.New(name, llm, func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("you are " + name)
		o.Tools = tools
	})
	require.NoError(t, err)
	return runner.New(a)
}

func lastUserMessage(req model.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func TestStepInput_PromptAndContent(t *testing.T) {
	in := NewStepInput("topic", "s1", "u1")
	assert.Equal(t, "topic", in.Prompt())
	assert.Empty(t, in.LastContent())

	in = in.with("research", &StepOutput{Content: "facts"})
	in = in.with("outline", &StepOutput{Content: "outline"})

	assert.Equal(t, "outline", in.Prompt())
	content, ok := in.StepContent("research")
	require.True(t, ok)
	assert.Equal(t, "facts", content)
	assert.Equal(t, "=== research ===\nfacts\n\n=== outline ===\noutline", in.AllContent())

	_, ok = in.StepOutput("missing")
	assert.False(t, ok)
}

func TestStepInput_WithCopiesAndReordersReruns(t *testing.T) {
	first := NewStepInput("m", "", "").with("a", &StepOutput{Content: "a1"})
	second := first.with("b", &StepOutput{Content: "b1"})
	third := second.with("a", &StepOutput{Content: "a2"})

	assert.Equal(t, 1, first.Previous.Len(), "earlier inputs are not modified")
	assert.Equal(t, "b1", second.LastContent())
	assert.Equal(t, "a2", third.LastContent())

	var keys []string
	for k := range third.Previous.KeysFromOldest() {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"b", "a"}, keys)
}

func TestAgentStep_PromptsWithPreviousContent(t *testing.T) {
	llm := model.NewScriptedModel("m", model.TextTurn("summary"))
	step := NewAgentStep("summarize", newRunner(t, "summarizer", llm))

	in := NewStepInput("topic", "s1", "u1").with("research", &StepOutput{Content: "facts"})
	outs, err := step.Execute(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, outs, 1)

	out := outs[0]
	assert.Equal(t, "summarize", out.Step)
	assert.Equal(t, ExecutorAgent, out.Executor)
	assert.Equal(t, "summary", out.Content)
	require.NotNil(t, out.Record)
	assert.Equal(t, core.RunStatusCompleted, out.Record.Status)
	assert.Equal(t, "s1", out.Record.SessionID)
	assert.Equal(t, "u1", out.Record.UserID)

	require.Len(t, llm.Requests(), 1)
	assert.Equal(t, "facts", lastUserMessage(llm.Requests()[0]))
}

func TestAgentStep_TeamExecutor(t *testing.T) {
	member, err := agent.New("writer", model.NewScriptedModel("w"))
	require.NoError(t, err)
	team, err := agent.NewTeam("editorial", model.NewScriptedModel("lead", model.TextTurn("done")), []agent.Target{member})
	require.NoError(t, err)

	outs, err := NewAgentStep("edit", runner.New(team)).Execute(context.Background(), NewStepInput("go", "", ""))
	require.NoError(t, err)
	assert.Equal(t, ExecutorTeam, outs[0].Executor)
	assert.Equal(t, "done", outs[0].Content)
}

func TestAgentStep_PausedRunFails(t *testing.T) {
	deploy := tool.NewFunctionTool("deploy", "deploys", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return "deployed", nil
	}, tool.WithConfirmation())

	llm := model.NewScriptedModel("m", model.ToolTurn(model.Call("1", "deploy", nil)))
	step := NewAgentStep("ship", newRunner(t, "shipper", llm, deploy))

	_, err := step.Execute(context.Background(), NewStepInput("go", "", ""))
	require.ErrorIs(t, err, ErrStepPaused)
	assert.Contains(t, err.Error(), "deploy")
}

func TestAgentStep_SkipOnFailure(t *testing.T) {
	llm := model.NewScriptedModel("m", model.ErrorTurn(errors.New("quota")))
	step := NewAgentStep("research", newRunner(t, "researcher", llm), func(o *StepOptions) { o.SkipOnFailure = true })

	outs, err := step.Execute(context.Background(), NewStepInput("go", "", ""))
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.True(t, outs[0].Failed())
	assert.Contains(t, outs[0].Error, "quota")
	assert.Equal(t, "step research failed but was skipped", outs[0].Content)
}

func TestFuncStep_Retries(t *testing.T) {
	attempts := 0
	step := NewFuncStep("flaky", func(context.Context, *StepInput) (*StepOutput, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not yet")
		}
		return &StepOutput{Content: "ok"}, nil
	}, func(o *StepOptions) { o.Retries = 2 })

	outs, err := step.Execute(context.Background(), NewStepInput("go", "", ""))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "ok", outs[0].Content)
	assert.Equal(t, ExecutorFunction, outs[0].Executor)
	assert.Equal(t, "flaky", outs[0].Step)
}

func TestFuncStep_ExhaustedRetriesFail(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	step := NewFuncStep("broken", func(context.Context, *StepInput) (*StepOutput, error) {
		attempts++
		return nil, boom
	}, func(o *StepOptions) { o.Retries = 1 })

	_, err := step.Execute(context.Background(), NewStepInput("go", "", ""))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, attempts)
}

func TestFuncStep_PanicAndNilOutput(t *testing.T) {
	panicking := NewFuncStep("panics", func(context.Context, *StepInput) (*StepOutput, error) {
		panic("kaboom")
	})
	_, err := panicking.Execute(context.Background(), NewStepInput("go", "", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	empty := NewFuncStep("empty", func(context.Context, *StepInput) (*StepOutput, error) { return nil, nil })
	outs, err := empty.Execute(context.Background(), NewStepInput("go", "", ""))
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "empty", outs[0].Step)
	assert.Empty(t, outs[0].Content)
}

func TestFuncStep_CancelledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	step := NewFuncStep("slow", func(context.Context, *StepInput) (*StepOutput, error) {
		attempts++
		cancel()
		return nil, errors.New("interrupted")
	}, func(o *StepOptions) {
		o.Retries = 3
		o.SkipOnFailure = true
	})

	_, err := step.Execute(ctx, NewStepInput("go", "", ""))
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
