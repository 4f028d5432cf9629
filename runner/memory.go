package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/memory"
	"github.com/hupe1980/agentrun/model"
)

// MemoryExtractor derives new long-term memories about a user from the
// messages of a completed turn.
type MemoryExtractor interface {
	Extract(ctx context.Context, userID string, messages []core.Message, existing []core.Memory) ([]core.Memory, error)
}

// MemoryExtractorFunc adapts a function to MemoryExtractor.
type MemoryExtractorFunc func(ctx context.Context, userID string, messages []core.Message, existing []core.Memory) ([]core.Memory, error)

// Extract implements MemoryExtractor.
func (f MemoryExtractorFunc) Extract(ctx context.Context, userID string, messages []core.Message, existing []core.Memory) ([]core.Memory, error) {
	return f(ctx, userID, messages, existing)
}

const memoryInstructions = `You maintain long-term memories about a user.
Read the conversation and list new, durable facts about the user (preferences, personal details, goals).
Skip facts already known. Answer with JSON: {"memories": [{"content": "...", "topics": ["..."]}]}.
Answer {"memories": []} when there is nothing new.`

var memorySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"memories": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{"type": "string"},
					"topics":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required":             []string{"content", "topics"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"memories"},
	"additionalProperties": false,
}

// ModelExtractor asks a model to extract memories.
type ModelExtractor struct {
	model model.Model
}

// NewModelExtractor returns an extractor backed by m.
func NewModelExtractor(m model.Model) *ModelExtractor {
	return &ModelExtractor{model: m}
}

// Extract implements MemoryExtractor.
func (e *ModelExtractor) Extract(ctx context.Context, userID string, messages []core.Message, existing []core.Memory) ([]core.Memory, error) {
	var b strings.Builder
	if len(existing) > 0 {
		b.WriteString("Known memories:\n")
		for _, mem := range existing {
			fmt.Fprintf(&b, "- %s\n", mem.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Conversation:\n")
	for _, msg := range messages {
		if msg.Role != core.RoleUser && msg.Role != core.RoleAssistant {
			continue
		}
		if msg.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}

	res, err := model.Collect(ctx, e.model, model.Request{
		Messages: []core.Message{
			core.NewSystemMessage(memoryInstructions),
			core.NewUserMessage(b.String()),
		},
		ResponseFormat: &model.ResponseFormat{Type: model.FormatJSONSchema, Name: "memories", Schema: memorySchema, Strict: true},
	}, nil)
	if err != nil {
		return nil, err
	}

	return parseMemories(res.Message.Content, existing)
}

func parseMemories(content string, existing []core.Memory) ([]core.Memory, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out struct {
		Memories []struct {
			Content string   `json:"content"`
			Topics  []string `json:"topics"`
		} `json:"memories"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("decode extracted memories: %w", err)
	}

	var mems []core.Memory
	for _, m := range out.Memories {
		if strings.TrimSpace(m.Content) == "" || known(m.Content, existing) {
			continue
		}
		mems = append(mems, core.Memory{Content: m.Content, Topics: m.Topics})
	}
	return mems, nil
}

func known(content string, existing []core.Memory) bool {
	for _, mem := range existing {
		if memory.SameContent(mem.Content, content) {
			return true
		}
	}
	return false
}

// updateMemory runs memory extraction after a completed top-level turn.
// Failures are reported on the memory-update-completed event and never
// fail the run.
func (m *machine) updateMemory(ctx context.Context) {
	r := m.runner
	rec := m.rc.Record
	if r.memory == nil || r.extractor == nil || m.session == nil || rec.UserID == "" {
		return
	}

	m.emit(core.NewEvent(core.EventMemoryUpdateStarted, rec, core.MemoryPayload{UserID: rec.UserID}))

	ctx, span := startSpan(ctx, r.tracer, spanMemory, attribute.String("run.id", rec.ID))
	n, err := r.extractMemories(ctx, rec)
	endSpan(span, err, "memory update failed")

	payload := core.MemoryPayload{UserID: rec.UserID, Memories: n}
	if err != nil {
		payload.Error = err.Error()
		m.rc.LogWarn("runner.memory.update_failed", "user_id", rec.UserID, "error", err)
	}

	m.emit(core.NewEvent(core.EventMemoryUpdateCompleted, rec, payload))
}

func (r *Runner) extractMemories(ctx context.Context, rec *core.RunRecord) (int, error) {
	existing, err := r.memory.GetUserMemories(ctx, rec.UserID)
	if err != nil {
		return 0, fmt.Errorf("load memories: %w", err)
	}

	found, err := r.extractor.Extract(ctx, rec.UserID, rec.Messages, existing)
	if err != nil {
		return 0, fmt.Errorf("extract memories: %w", err)
	}

	var (
		added int
		errs  []error
	)
	for _, mem := range found {
		mem.UserID = rec.UserID
		mem.RunID = rec.ID
		if err := r.memory.AddMemory(ctx, mem); err != nil {
			errs = append(errs, err)
			continue
		}
		added++
	}

	return added, errors.Join(errs...)
}
