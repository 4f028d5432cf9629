package runner

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
)

func TestStartStream_TextDeltas(t *testing.T) {
	llm := model.NewScriptedModel("m", model.TextTurn("streamed answer here"))
	r := New(newAgent(t, llm))

	ch, err := r.StartStream(context.Background(), Input{Message: "hi"})
	require.NoError(t, err)
	events := testutil.Drain(ch)

	kinds := testutil.Kinds(events)
	require.Equal(t, core.EventRunStarted, kinds[0])
	require.Equal(t, core.EventRunCompleted, kinds[len(kinds)-1])

	var text strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		d, ok := ev.Delta()
		require.True(t, ok, "only deltas between start and completion")
		assert.Equal(t, 2, d.MessageIndex, "deltas point at the assistant message")
		text.WriteString(d.Content)
	}
	assert.Equal(t, "streamed answer here", text.String())

	rec, ok := testutil.Last(t, events).Record()
	require.True(t, ok)
	assert.Equal(t, "streamed answer here", rec.Content())

	for _, ev := range r.Events(rec.ID) {
		assert.NotEqual(t, core.EventModelDelta, ev.Kind, "deltas are not retained")
	}
}

func TestStartStream_PauseAndResumeOrdering(t *testing.T) {
	var gatedCalls, normalCalls atomic.Int32
	llm := model.NewScriptedModel("m",
		model.ToolTurn(
			model.Call("A", "deploy", map[string]any{"text": "x"}),
			model.Call("B", "lookup", map[string]any{"text": "y"}),
		),
		model.TextTurn("all done"),
	)
	r := New(newAgent(t, llm,
		countingTool("deploy", &gatedCalls, tool.WithConfirmation()),
		countingTool("lookup", &normalCalls),
	))
	ctx := context.Background()

	ch, err := r.StartStream(ctx, Input{Message: "go"})
	require.NoError(t, err)
	events := testutil.Drain(ch)

	require.Equal(t, core.EventRunStarted, events[0].Kind)
	last := testutil.Last(t, events)
	require.Equal(t, core.EventRunPaused, last.Kind)

	startedA := testutil.IndexOf(events, core.EventToolCallStarted, testutil.ForCall("A"))
	startedB := testutil.IndexOf(events, core.EventToolCallStarted, testutil.ForCall("B"))
	completedB := testutil.IndexOf(events, core.EventToolCallCompleted, testutil.ForCall("B"))
	require.NotEqual(t, -1, startedA)
	require.NotEqual(t, -1, startedB)
	require.NotEqual(t, -1, completedB)
	assert.Less(t, startedB, completedB)
	assert.Less(t, startedA, len(events)-1, "gated calls are announced before the pause")
	assert.Equal(t, -1, testutil.IndexOf(events, core.EventToolCallCompleted, testutil.ForCall("A")))

	inv, ok := events[startedA].Invocation()
	require.True(t, ok)
	assert.Equal(t, core.GatingRequiresConfirmation, inv.Gating)

	rec, ok := last.Record()
	require.True(t, ok)
	rec.Pending()[0].Confirm()

	ch, err = r.ResumeStream(ctx, rec)
	require.NoError(t, err)
	resumed := testutil.Drain(ch)

	require.Equal(t, core.EventRunContinued, resumed[0].Kind)
	completedA := testutil.IndexOf(resumed, core.EventToolCallCompleted, testutil.ForCall("A"))
	require.NotEqual(t, -1, completedA)
	assert.Equal(t, -1, testutil.IndexOf(resumed, core.EventToolCallStarted, testutil.ForCall("A")),
		"resumed calls are not announced twice")

	terminal := testutil.Last(t, resumed)
	assert.Equal(t, core.EventRunCompleted, terminal.Kind)
	assert.Less(t, completedA, len(resumed)-1)

	assert.Equal(t, int32(1), gatedCalls.Load())
	assert.Equal(t, int32(1), normalCalls.Load())

	all := r.Events(rec.ID)
	assert.Len(t, all, countNonDelta(events)+countNonDelta(resumed))
}

func TestResumeStream_InvalidResumeIsSynchronous(t *testing.T) {
	var calls atomic.Int32
	llm := model.NewScriptedModel("m", model.ToolTurn(model.Call("A", "deploy", nil)))
	r := New(newAgent(t, llm, countingTool("deploy", &calls, tool.WithConfirmation())))

	rec, err := r.Start(context.Background(), Input{Message: "go"})
	require.NoError(t, err)

	ch, err := r.ResumeStream(context.Background(), rec)
	assert.Nil(t, ch)
	var invalid *core.InvalidResumeError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, core.RunStatusPaused, invalid.Status)
}

func TestStartStream_ErrorIsTerminalEvent(t *testing.T) {
	llm := model.NewScriptedModel("m")
	r := New(newAgent(t, llm))

	ch, err := r.StartStream(context.Background(), Input{Message: "hi"})
	require.NoError(t, err)
	events := testutil.Drain(ch)

	last := testutil.Last(t, events)
	assert.Equal(t, core.EventRunError, last.Kind)
	rec, ok := last.Record()
	require.True(t, ok)
	assert.Contains(t, rec.Error, model.ErrScriptExhausted.Error())
}

func countNonDelta(events []core.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Kind != core.EventModelDelta {
			n++
		}
	}
	return n
}
