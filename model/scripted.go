package model

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/hupe1980/agentrun/core"
)

// ErrScriptExhausted is returned by ScriptedModel when no turn is left.
var ErrScriptExhausted = errors.New("scripted model: no response left")

// Turn is one scripted model reply.
type Turn struct {
	Text      string
	ToolCalls []core.ToolCall
	Usage     core.Usage
	Err       error
}

// TextTurn returns a final-answer turn.
func TextTurn(text string) Turn { return Turn{Text: text} }

// ToolTurn returns a turn requesting tool calls.
func ToolTurn(calls ...core.ToolCall) Turn { return Turn{ToolCalls: calls} }

// ErrorTurn returns a turn that fails the call.
func ErrorTurn(err error) Turn { return Turn{Err: err} }

// Call builds a tool call with JSON encoded arguments.
func Call(id, name string, args map[string]any) core.ToolCall {
	raw, _ := json.Marshal(args)
	if args == nil {
		raw = []byte("{}")
	}
	return core.ToolCall{ID: id, Name: name, Arguments: raw}
}

// ScriptedModel is an in-memory Model that replays scripted turns in order
// and records every request it receives. In streaming mode text is emitted
// word by word before the final chunk. It is safe for concurrent use.
type ScriptedModel struct {
	info Info

	mu       sync.Mutex
	turns    []Turn
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel.
func NewScriptedModel(name string, turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: name, Provider: "scripted", SupportsTools: true},
		turns: turns,
	}
}

// Enqueue appends turns to the script.
func (m *ScriptedModel) Enqueue(turns ...Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls returns how many requests were received.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Remaining returns how many turns are left.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

func (m *ScriptedModel) next(req Request) (Turn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req.Messages = core.CloneMessages(req.Messages)
	m.requests = append(m.requests, req)

	if len(m.turns) == 0 {
		return Turn{}, false
	}
	t := m.turns[0]
	m.turns = m.turns[1:]
	return t, true
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		turn, ok := m.next(req)
		if !ok {
			errCh <- ErrScriptExhausted
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream && turn.Text != "" {
			for _, chunk := range splitWords(turn.Text) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Delta: chunk}:
				}
			}
		}

		usage := turn.Usage
		finish := "stop"
		if len(turn.ToolCalls) > 0 {
			finish = "tool_calls"
		}
		respCh <- Response{
			Message:      core.Message{Role: core.RoleAssistant, Content: turn.Text, ToolCalls: turn.ToolCalls},
			FinishReason: finish,
			Usage:        &usage,
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// splitWords splits text into chunks that concatenate back to text.
func splitWords(text string) []string {
	var chunks []string
	for len(text) > 0 {
		i := strings.IndexByte(text[1:], ' ')
		if i < 0 {
			chunks = append(chunks, text)
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	return chunks
}
