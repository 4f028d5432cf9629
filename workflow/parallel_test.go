package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParallel_AggregatesInDeclarationOrder(t *testing.T) {
	slow := NewFuncStep("slow", func(context.Context, *StepInput) (*StepOutput, error) {
		time.Sleep(30 * time.Millisecond)
		return &StepOutput{Content: "slow result"}, nil
	})
	fast := textStep("fast", func(*StepInput) string { return "fast result" })

	outs, err := NewParallel("research", slow, fast).Execute(context.Background(), NewStepInput("go", "", ""))
	require.NoError(t, err)
	require.Len(t, outs, 1)

	agg := outs[0]
	assert.Equal(t, "research", agg.Step)
	assert.Equal(t, ExecutorParallel, agg.Executor)
	assert.False(t, agg.Failed())
	require.Len(t, agg.Parallel, 2)
	assert.Equal(t, "slow", agg.Parallel[0].Step)
	assert.Equal(t, "fast", agg.Parallel[1].Step)
	assert.Equal(t,
		"## Parallel Execution Results\n\n### slow (SUCCESS)\nslow result\n\n### fast (SUCCESS)\nfast result\n",
		agg.Content)
}

func TestParallel_BranchesShareTheInput(t *testing.T) {
	in := NewStepInput("go", "", "").with("plan", &StepOutput{Content: "the plan"})
	a := textStep("a", func(in *StepInput) string { return "a:" + in.Prompt() })
	b := textStep("b", func(in *StepInput) string { return "b:" + in.Prompt() })

	outs, err := NewParallel("both", a, b).Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "a:the plan", outs[0].Parallel[0].Content)
	assert.Equal(t, "b:the plan", outs[0].Parallel[1].Content)
}

func TestParallel_FailedBranchDoesNotAffectOthers(t *testing.T) {
	failing := NewMockStep("failing")
	failing.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	ok := textStep("ok", func(*StepInput) string { return "fine" })

	outs, err := NewParallel("mixed", failing, ok).Execute(context.Background(), NewStepInput("go", "", ""))
	require.NoError(t, err)

	agg := outs[0]
	assert.True(t, agg.Failed())
	assert.Equal(t, "failed branches: failing", agg.Error)
	assert.True(t, agg.Parallel[0].Failed())
	assert.Contains(t, agg.Parallel[0].Content, "boom")
	assert.Equal(t, "fine", agg.Parallel[1].Content)
	assert.Contains(t, agg.Content, "### failing (FAILURE)")
}

func TestParallel_RunsConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)

	waiter := func(name string) Step {
		return NewFuncStep(name, func(context.Context, *StepInput) (*StepOutput, error) {
			barrier.Done()
			done := make(chan struct{})
			go func() { barrier.Wait(); close(done) }()
			select {
			case <-done:
				return &StepOutput{Content: name}, nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("branches did not overlap")
			}
		})
	}

	outs, err := NewParallel("pair", waiter("a"), waiter("b")).Execute(context.Background(), NewStepInput("go", "", ""))
	require.NoError(t, err)
	assert.False(t, outs[0].Failed())
}

func TestParallel_SingleBranchKeepsItsContent(t *testing.T) {
	only := NewFuncStep("only", func(context.Context, *StepInput) (*StepOutput, error) {
		return &StepOutput{Content: "solo", Stop: true}, nil
	})

	outs, err := NewParallel("one", only).Execute(context.Background(), NewStepInput("go", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "solo", outs[0].Content)
	assert.True(t, outs[0].Stop)
	assert.Len(t, outs[0].Parallel, 1)
}

func TestParallel_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParallel("p", textStep("a", func(*StepInput) string { return "a" })).WithLimit(1).
		Execute(ctx, NewStepInput("go", "", ""))
	assert.ErrorIs(t, err, context.Canceled)
}
