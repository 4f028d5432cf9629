package model

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrun/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response format types.
const (
	FormatText       = "text"
	FormatJSONObject = "json_object"
	FormatJSONSchema = "json_schema"
)

// ResponseFormat asks the provider for structured output.
type ResponseFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict bool           `json:"strict,omitempty"`
}

// Request is one model call. It carries everything the provider needs,
// including the tool set bound for this call only.
type Request struct {
	Messages       []core.Message   `json:"messages"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`
	Stream         bool             `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model. Partial chunks
// carry a text Delta; the final chunk carries the complete assistant Message.
type Response struct {
	Partial      bool         `json:"partial"`
	Delta        string       `json:"delta,omitempty"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", etc.
	Usage        *core.Usage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the run engine to drive generation.
//
// Generate returns a response channel and an error channel. Implementations
// close both when done and send at most one error, after the last response.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Result is the outcome of a drained generation.
type Result struct {
	Message      core.Message
	Usage        core.Usage
	FinishReason string
}

// Collect drains a generation. onDelta, if set, is called for every partial
// text chunk in order. Without a final chunk Collect returns an error.
func Collect(ctx context.Context, m Model, req Request, onDelta func(delta string)) (Result, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		res   Result
		final bool
	)
	for resp := range respCh {
		if resp.Usage != nil {
			res.Usage.Add(*resp.Usage)
		}
		if resp.Partial {
			if resp.Delta != "" && onDelta != nil {
				onDelta(resp.Delta)
			}
			continue
		}
		res.Message = resp.Message
		res.FinishReason = resp.FinishReason
		final = true
	}

	if err := <-errCh; err != nil {
		return res, err
	}

	if !final {
		return res, fmt.Errorf("model %s returned no final response", m.Info().Name)
	}

	if res.Message.Role == "" {
		res.Message.Role = core.RoleAssistant
	}

	return res, nil
}
