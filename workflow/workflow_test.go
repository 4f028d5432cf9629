package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/model"
)

func TestNew_Validation(t *testing.T) {
	step := NewMockStep("a")

	_, err := New("", []Step{step})
	assert.Error(t, err)

	_, err = New("wf", nil)
	assert.Error(t, err)

	_, err = New("wf", []Step{step, NewMockStep("a")})
	assert.ErrorContains(t, err, "duplicate step name")

	_, err = New("wf", []Step{step, nil})
	assert.ErrorContains(t, err, "nil")

	wf, err := New("wf", []Step{step}, func(o *Options) { o.Logger = logging.NoOpLogger{} })
	require.NoError(t, err)
	assert.Equal(t, "wf", wf.Name())
}

func TestWorkflow_RunChainsAgentsAndFunctions(t *testing.T) {
	researcherLLM := model.NewScriptedModel("r", model.TextTurn("facts about go"))
	writerLLM := model.NewScriptedModel("w", model.TextTurn("the article"))

	wf, err := New("blog", []Step{
		NewAgentStep("research", newRunner(t, "researcher", researcherLLM)),
		textStep("outline", func(in *StepInput) string { return "outline of " + in.Prompt() }),
		NewCondition("long-form", func(in *StepInput) bool { return in.Message == "go" },
			NewAgentStep("write", newRunner(t, "writer", writerLLM)),
		),
	})
	require.NoError(t, err)

	res, err := wf.Run(context.Background(), Input{UserID: "u1", Message: "go"})
	require.NoError(t, err)

	assert.Equal(t, "blog", res.Workflow)
	assert.NotEmpty(t, res.ID)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "the article", res.Content)
	assert.False(t, res.Stopped)
	require.Len(t, res.Outputs, 3)
	assert.False(t, res.CompletedAt.Before(res.StartedAt))

	assert.Equal(t, "go", lastUserMessage(researcherLLM.Requests()[0]))
	assert.Equal(t, "outline of facts about go", lastUserMessage(writerLLM.Requests()[0]))

	research, write := res.Outputs[0], res.Outputs[2]
	assert.Equal(t, res.SessionID, research.Record.SessionID)
	assert.Equal(t, res.SessionID, write.Record.SessionID)
	assert.Equal(t, "u1", write.Record.UserID)
	assert.Equal(t, core.RunStatusCompleted, write.Record.Status)
}

func TestWorkflow_RunFailureReturnsPartialResult(t *testing.T) {
	boom := errors.New("boom")
	failing := NewMockStep("publish")
	failing.On("Execute", mock.Anything, mock.Anything).Return(nil, boom)

	wf, err := New("blog", []Step{
		textStep("draft", func(*StepInput) string { return "draft" }),
		failing,
	})
	require.NoError(t, err)

	res, err := wf.Run(context.Background(), Input{SessionID: "s1", Message: "go"})
	require.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "publish", stepErr.Step)

	require.NotNil(t, res)
	assert.Equal(t, "s1", res.SessionID)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "draft", res.Content)
}

func TestWorkflow_StopIsReported(t *testing.T) {
	wf, err := New("guarded", []Step{
		NewFuncStep("check", func(context.Context, *StepInput) (*StepOutput, error) {
			return &StepOutput{Content: "rejected", Stop: true}, nil
		}),
		NewMockStep("never"),
	})
	require.NoError(t, err)

	res, err := wf.Run(context.Background(), Input{Message: "go"})
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, "rejected", res.Content)
}

func TestWorkflow_RunRequiresMessage(t *testing.T) {
	wf, err := New("wf", []Step{NewMockStep("a")})
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), Input{})
	assert.Error(t, err)
}
