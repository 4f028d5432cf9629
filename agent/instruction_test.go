package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(*core.RunContext) (string, error) { return m.text, m.err }

func newTestRunContext(local, shared *core.StateBag) *core.RunContext {
	rec := core.NewRunRecord("s1", "u1", "agent")
	return core.NewRunContext(
		context.Background(),
		rec,
		core.TargetInfo{Name: "TestAgent", Kind: KindAgent},
		local,
		shared,
		core.NewCallLimiter(0, 0, 0, 0),
		logging.NoOpLogger{},
	)
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())
	assert.False(t, inst.IsZero())

	got, err := inst.Resolve(newTestRunContext(core.NewStateBag(), nil))
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_TemplateUsesState(t *testing.T) {
	local := core.StateBagFromMap(map[string]any{"name": "Ada"})
	shared := core.StateBagFromMap(map[string]any{"name": "team", "topic": "math"})

	inst := NewInstructionFromText(`Hi {{ .name }}, topic {{ .topic }}, lang {{ default "en" .lang }}`)
	got, err := inst.Resolve(newTestRunContext(local, shared))
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, topic math, lang en", got)
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "dynamic"})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext(core.NewStateBag(), nil))
	require.NoError(t, err)
	assert.Equal(t, "dynamic", got)
}

func TestInstruction_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: boom})

	_, err := inst.Resolve(newTestRunContext(core.NewStateBag(), nil))
	assert.ErrorIs(t, err, boom)
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		return "session " + rc.SessionID(), nil
	})

	got, err := inst.Resolve(newTestRunContext(core.NewStateBag(), nil))
	require.NoError(t, err)
	assert.Equal(t, "session s1", got)
}
