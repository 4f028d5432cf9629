package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/tool"
)

// machine drives one start or resume call of one run.
type machine struct {
	runner  *Runner
	target  agent.Target
	rc      *core.RunContext
	session *core.SessionRecord // nil for delegated runs
	emitter *emitter
	input   string

	ctx     context.Context
	release func()
}

// drive runs step and settles the record: terminal status, session save,
// memory update and the closing event. step returns nil when the run
// completed or paused.
func (m *machine) drive(step func(ctx context.Context) error) (*core.RunRecord, error) {
	defer m.release()

	rec := m.rc.Record
	ctx, span := startSpan(m.ctx, m.runner.tracer, spanRun, runAttributes(rec)...)
	m.rc = m.rc.WithContext(ctx)

	m.runner.logger.Info("runner.run.start", "run_id", rec.ID, "session_id", rec.SessionID, "target", rec.Target, "resume", m.input == "")

	err := step(ctx)
	err = m.finish(ctx, err)

	span.SetAttributes(attribute.String("run.status", string(rec.Status)))
	endSpan(span, err, "run failed")

	return rec, err
}

func (m *machine) start(ctx context.Context) error {
	rec := m.rc.Record

	instructions, err := m.target.Instructions(m.rc)
	if err == nil && instructions != "" {
		rec.AppendMessage(core.NewSystemMessage(instructions))
	}
	rec.AppendMessage(core.NewUserMessage(m.input))

	m.emit(core.NewRecordEvent(core.EventRunStarted, rec))

	if err != nil {
		return fmt.Errorf("resolve instructions of %s: %w", m.target.Name(), err)
	}

	return m.loop(ctx)
}

func (m *machine) resume(ctx context.Context) error {
	rec := m.rc.Record

	m.emit(core.NewRecordEvent(core.EventRunContinued, rec))

	pending := rec.Pending()
	rec.PendingIDs = nil

	var execute []*core.ToolInvocation
	for _, inv := range pending {
		if !inv.NeedsExecution() {
			m.emit(core.NewInvocationEvent(core.EventToolCallCompleted, rec, inv))
			continue
		}
		if inv.Gating == core.GatingRequiresUserInput {
			inv.ApplyUserInput()
		}
		execute = append(execute, inv)
	}

	m.runner.executor.execute(ctx, m.rc, m.target.Tools(), execute, false, m.emit)
	m.fold(pending)

	return m.loop(ctx)
}

// loop calls the model until it answers without tool calls, a gated call
// suspends the run, or something fails.
func (m *machine) loop(ctx context.Context) error {
	rec := m.rc.Record
	tools := m.target.Tools()
	defs := toolDefinitions(tools)

	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		if err := m.rc.Limiter.IncrementModel(); err != nil {
			return err
		}

		msg, err := m.generate(ctx, defs)
		if err != nil {
			return err
		}
		rec.AppendMessage(msg)

		if !msg.HasToolCalls() {
			if !m.runner.settle(rec.ID, core.RunStatusCompleted) {
				return cancelled(context.Canceled)
			}
			return rec.Transition(core.RunStatusCompleted)
		}

		invs := m.prepare(msg.ToolCalls, tools)

		var execute, gated []*core.ToolInvocation
		for _, inv := range invs {
			switch {
			case !inv.NeedsExecution():
				m.emit(core.NewInvocationEvent(core.EventToolCallStarted, rec, inv))
				m.emit(core.NewInvocationEvent(core.EventToolCallCompleted, rec, inv))
			case inv.Gating.Suspends():
				gated = append(gated, inv)
			default:
				execute = append(execute, inv)
			}
		}

		m.runner.executor.execute(ctx, m.rc, tools, execute, true, m.emit)

		resolved := make([]*core.ToolInvocation, 0, len(invs))
		for _, inv := range invs {
			if !inv.Gating.Suspends() || !inv.NeedsExecution() {
				resolved = append(resolved, inv)
			}
		}
		m.fold(resolved)
		m.runner.track(rec)

		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		if len(gated) > 0 {
			if !m.runner.settle(rec.ID, core.RunStatusPaused) {
				return cancelled(context.Canceled)
			}
			for _, inv := range gated {
				rec.PendingIDs = append(rec.PendingIDs, inv.ID)
				m.emit(core.NewInvocationEvent(core.EventToolCallStarted, rec, inv))
			}
			m.rc.LogInfo("runner.run.suspend", "pending", len(gated))
			return rec.Transition(core.RunStatusPaused)
		}
	}
}

func (m *machine) generate(ctx context.Context, defs []model.ToolDefinition) (core.Message, error) {
	rec := m.rc.Record
	llm := m.target.Model()
	info := llm.Info()

	ctx, span := startSpan(ctx, m.runner.tracer, spanModel,
		attribute.String("model.name", info.Name),
		attribute.String("model.provider", info.Provider),
		attribute.String("run.id", rec.ID),
	)

	req := model.Request{
		Messages:       core.CloneMessages(rec.Messages),
		Tools:          defs,
		ResponseFormat: m.target.ResponseFormat(),
		Stream:         m.emitter != nil,
	}

	index := len(rec.Messages)
	start := time.Now()
	res, err := model.Collect(ctx, llm, req, func(delta string) {
		m.emit(core.NewDeltaEvent(rec, index, delta))
	})
	logging.LogModelCall(m.runner.logger, info.Name, int(res.Usage.TotalTokens), time.Since(start), err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			endSpan(span, nil, "")
			return core.Message{}, cancelled(ctxErr)
		}

		var providerErr *core.ModelProviderError
		if !errors.As(err, &providerErr) {
			err = &core.ModelProviderError{Provider: info.Provider, Model: info.Name, Err: err}
		}
		m.rc.LogError("runner.model.error", "model", info.Name, "error", err)
		endSpan(span, err, "model call failed")
		return core.Message{}, err
	}

	span.SetAttributes(attribute.Int64("model.tokens.total", res.Usage.TotalTokens))
	endSpan(span, nil, "")

	rec.Usage.Add(res.Usage)

	msg := res.Message
	msg.Author = m.target.Name()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	// Invocations are matched by call ID, so every call of a response gets a
	// unique one.
	seen := make(map[string]struct{}, len(msg.ToolCalls))
	for i := range msg.ToolCalls {
		call := &msg.ToolCalls[i]
		if _, dup := seen[call.ID]; dup && call.ID != "" {
			m.rc.LogWarn("runner.model.duplicate_call_id", "call_id", call.ID, "tool", call.Name)
			call.ID = ""
		}
		if call.ID == "" {
			call.ID = core.NewID()
		}
		seen[call.ID] = struct{}{}
	}

	return msg, nil
}

// prepare turns the tool calls of a model response into invocations and
// classifies them. Calls that cannot run at all are resolved with an error
// right away.
func (m *machine) prepare(calls []core.ToolCall, tools *tool.Set) []*core.ToolInvocation {
	rec := m.rc.Record

	invs := make([]*core.ToolInvocation, 0, len(calls))
	for _, call := range calls {
		inv, err := core.NewToolInvocation(call)
		t, found := tools.Get(call.Name)

		switch {
		case !found:
			inv.SetError(tool.NewToolError(call.Name, "tool not found", tool.CodeNotFound).Error())
		case err != nil:
			inv.SetError(tool.NewToolError(call.Name, err.Error(), tool.CodeValidation).Error())
		default:
			if gerr := m.runner.gate.Prepare(t, inv); gerr != nil {
				m.rc.LogWarn("runner.gate.unknown_class", "tool", call.Name, "error", gerr)
			}
		}

		rec.Invocations = append(rec.Invocations, inv)
		invs = append(invs, inv)
	}

	return invs
}

// fold appends one tool message per invocation, in the given order.
func (m *machine) fold(invs []*core.ToolInvocation) {
	rec := m.rc.Record
	for _, inv := range invs {
		content, isErr := inv.ResultContent()
		msg := core.NewToolMessage(inv.ID, inv.ToolName, content, isErr)
		msg.Author = m.target.Name()
		rec.AppendMessage(msg)
	}
}

func (m *machine) finish(ctx context.Context, err error) error {
	rec := m.rc.Record
	rec.ModelCalls, rec.ToolCalls = m.rc.Limiter.Counts()

	from := rec.Status
	var kind core.EventKind

	switch {
	case errors.Is(err, core.ErrRunCancelled):
		_ = rec.Transition(core.RunStatusCancelled)
		kind = core.EventRunCancelled
	case err != nil:
		rec.Error = err.Error()
		_ = rec.Transition(core.RunStatusError)
		kind = core.EventRunError
	case rec.Status == core.RunStatusPaused:
		kind = core.EventRunPaused
	default:
		m.updateMemory(ctx)
		kind = core.EventRunCompleted
	}

	logging.LogRunStatus(m.runner.logger, string(from), string(rec.Status))

	if m.session != nil {
		persistCtx := context.WithoutCancel(ctx)
		if serr := m.runner.sessions.SaveRun(persistCtx, m.session, rec, m.target.State(), m.target.SharedState()); serr != nil {
			m.rc.LogWarn("runner.session.save_failed", "error", serr)
		}
	}

	m.runner.track(rec)
	m.emit(core.NewTerminalEvent(kind, rec, err))

	m.runner.logger.Info("runner.run.end",
		"run_id", rec.ID,
		"status", rec.Status,
		"model_calls", rec.ModelCalls,
		"tool_calls", rec.ToolCalls,
		"total_tokens", rec.Usage.TotalTokens,
	)

	return err
}

func (m *machine) emit(ev core.Event) {
	if ev.Kind != core.EventModelDelta {
		m.runner.logEvent(ev)
	}
	m.emitter.send(ev)
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", core.ErrRunCancelled, cause)
}

func toolDefinitions(tools *tool.Set) []model.ToolDefinition {
	list := tools.List()
	if len(list) == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, len(list))
	for _, t := range list {
		params := t.Parameters()
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, model.ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: params})
	}
	return defs
}
