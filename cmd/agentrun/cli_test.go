package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun"
	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/runner"
	"github.com/hupe1980/agentrun/session"
	"github.com/hupe1980/agentrun/tool"
)

func newTerminal(t *testing.T, input string, llm model.Model, tools ...tool.Tool) (*terminal, *bytes.Buffer) {
	t.Helper()
	a, err := agent.New("assistant", llm, func(o *agent.Options) { o.Tools = tools })
	require.NoError(t, err)

	var out bytes.Buffer
	return &terminal{
		ar:  agentrun.New(a),
		in:  bufio.NewReader(strings.NewReader(input)),
		out: &out,
	}, &out
}

func TestTerminal_ConfirmsPausedCall(t *testing.T) {
	executed := false
	deploy := tool.NewFunctionTool("deploy", "deploys", nil, func(*core.ToolContext, map[string]any) (any, error) {
		executed = true
		return "shipped", nil
	}, tool.WithConfirmation())

	llm := model.NewScriptedModel("m",
		model.ToolTurn(model.Call("c1", "deploy", nil)),
		model.TextTurn("all good"),
	)
	term, out := newTerminal(t, "y\n", llm, deploy)

	require.NoError(t, term.run(context.Background(), runner.Input{Message: "deploy"}))
	assert.True(t, executed)
	assert.Contains(t, out.String(), "requires_confirmation wants to call deploy")
	assert.Contains(t, out.String(), "[tool deploy ok] shipped")
	assert.Contains(t, out.String(), "all good")
}

func TestTerminal_RejectsWithNote(t *testing.T) {
	deploy := tool.NewFunctionTool("deploy", "deploys", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return "shipped", nil
	}, tool.WithConfirmation())

	llm := model.NewScriptedModel("m",
		model.ToolTurn(model.Call("c1", "deploy", nil)),
		model.TextTurn("ok, not deploying"),
	)
	term, out := newTerminal(t, "n\nfreeze week\n", llm, deploy)

	require.NoError(t, term.run(context.Background(), runner.Input{Message: "deploy"}))
	assert.Contains(t, out.String(), "[tool deploy error]")
	assert.Contains(t, out.String(), "freeze week")
}

func TestTerminal_UserInputAndExternalResult(t *testing.T) {
	var seat any
	book := tool.NewFunctionTool("book", "books", map[string]any{
		"type":       "object",
		"properties": map[string]any{"seat": map[string]any{"type": "string"}},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		seat = args["seat"]
		return "booked", nil
	}, tool.WithUserInput())
	remote := tool.NewFunctionTool("remote", "runs elsewhere", nil, nil, tool.WithExternalExecution())

	llm := model.NewScriptedModel("m",
		model.ToolTurn(model.Call("c1", "book", nil), model.Call("c2", "remote", nil)),
		model.TextTurn("done"),
	)
	term, out := newTerminal(t, "12A\n{\"ok\": true}\n", llm, book, remote)

	require.NoError(t, term.run(context.Background(), runner.Input{Message: "book"}))
	assert.Equal(t, "12A", seat)
	assert.Contains(t, out.String(), `[tool remote ok] {"ok":true}`)
}

func TestTerminal_EOFWhileAsking(t *testing.T) {
	deploy := tool.NewFunctionTool("deploy", "deploys", nil, nil, tool.WithConfirmation())
	llm := model.NewScriptedModel("m", model.ToolTurn(model.Call("c1", "deploy", nil)))
	term, _ := newTerminal(t, "", llm, deploy)

	err := term.run(context.Background(), runner.Input{Message: "deploy"})
	assert.ErrorContains(t, err, "read answer")
}

func TestSessionsCommands(t *testing.T) {
	dir := t.TempDir()
	store, err := session.NewFileStore(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), core.NewSessionRecord("s1", "alice", "assistant")))

	cfgPath := filepath.Join(dir, "agentrun.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  driver: file\n  path: "+filepath.Join(dir, "sessions")+"\n"), 0o600))

	exec := func(args ...string) (string, error) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	out, err := exec("sessions", "list", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "alice")

	out, err = exec("sessions", "show", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "s1"`)

	out, err = exec("sessions", "delete", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted s1")

	_, err = exec("sessions", "show", "s1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
