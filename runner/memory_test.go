package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
	"github.com/hupe1980/agentrun/memory"
	"github.com/hupe1980/agentrun/model"
)

func TestMemoryUpdateAfterCompletedRun(t *testing.T) {
	store := memory.NewInMemoryStore()
	extractor := MemoryExtractorFunc(func(_ context.Context, userID string, msgs []core.Message, existing []core.Memory) ([]core.Memory, error) {
		assert.Equal(t, "u1", userID)
		assert.NotEmpty(t, msgs)
		return []core.Memory{{Content: "likes tea", Topics: []string{"drinks"}}}, nil
	})

	llm := model.NewScriptedModel("m", model.TextTurn("noted"))
	r := New(newAgent(t, llm), func(o *Options) {
		o.MemoryStore = store
		o.MemoryExtractor = extractor
	})

	ch, err := r.StartStream(context.Background(), Input{UserID: "u1", Message: "I like tea"})
	require.NoError(t, err)
	events := testutil.Drain(ch)

	started := testutil.IndexOf(events, core.EventMemoryUpdateStarted, nil)
	completed := testutil.IndexOf(events, core.EventMemoryUpdateCompleted, nil)
	require.NotEqual(t, -1, started)
	require.Less(t, started, completed)
	assert.Equal(t, core.EventRunCompleted, testutil.Last(t, events).Kind)
	assert.Less(t, completed, len(events)-1)

	payload, ok := events[completed].Payload.(core.MemoryPayload)
	require.True(t, ok)
	assert.Equal(t, 1, payload.Memories)
	assert.Empty(t, payload.Error)

	mems, err := store.GetUserMemories(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "likes tea", mems[0].Content)
	assert.NotEmpty(t, mems[0].RunID)
}

func TestMemoryUpdateFailureDoesNotFailRun(t *testing.T) {
	extractor := MemoryExtractorFunc(func(context.Context, string, []core.Message, []core.Memory) ([]core.Memory, error) {
		return nil, errors.New("extractor down")
	})

	r := New(newAgent(t, model.NewScriptedModel("m", model.TextTurn("ok"))), func(o *Options) {
		o.MemoryStore = memory.NewInMemoryStore()
		o.MemoryExtractor = extractor
	})

	rec, err := r.Start(context.Background(), Input{UserID: "u1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, rec.Status)

	events := r.Events(rec.ID)
	i := testutil.IndexOf(events, core.EventMemoryUpdateCompleted, nil)
	require.NotEqual(t, -1, i)
	payload := events[i].Payload.(core.MemoryPayload)
	assert.Contains(t, payload.Error, "extractor down")
}

func TestMemorySkippedWithoutUser(t *testing.T) {
	called := false
	r := New(newAgent(t, model.NewScriptedModel("m", model.TextTurn("ok"))), func(o *Options) {
		o.MemoryStore = memory.NewInMemoryStore()
		o.MemoryExtractor = MemoryExtractorFunc(func(context.Context, string, []core.Message, []core.Memory) ([]core.Memory, error) {
			called = true
			return nil, nil
		})
	})

	rec, err := r.Start(context.Background(), Input{Message: "hi"})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, -1, testutil.IndexOf(r.Events(rec.ID), core.EventMemoryUpdateStarted, nil))
}

func TestModelExtractor(t *testing.T) {
	llm := model.NewScriptedModel("extractor", model.TextTurn("```json\n"+
		`{"memories": [{"content": "Lives in Berlin", "topics": ["location"]}, {"content": "likes tea", "topics": []}]}`+
		"\n```"))

	ex := NewModelExtractor(llm)
	mems, err := ex.Extract(context.Background(), "u1",
		[]core.Message{core.NewUserMessage("I live in Berlin and like tea")},
		[]core.Memory{{Content: "Likes Tea"}},
	)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "Lives in Berlin", mems[0].Content)
	assert.Equal(t, []string{"location"}, mems[0].Topics)

	req := llm.Requests()[0]
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, model.FormatJSONSchema, req.ResponseFormat.Type)
	assert.Contains(t, req.Messages[1].Content, "Known memories:\n- Likes Tea")
}

func TestParseMemories(t *testing.T) {
	_, err := parseMemories("not json", nil)
	assert.Error(t, err)

	mems, err := parseMemories(`{"memories": [{"content": "  ", "topics": []}]}`, nil)
	require.NoError(t, err)
	assert.Empty(t, mems)
}
