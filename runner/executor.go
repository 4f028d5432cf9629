package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/tool"
)

// executor runs the tool invocations of one model response concurrently.
// Every invocation gets exactly one tool-call-completed event and ends up
// with a result or an error; a failing or panicking tool never affects its
// siblings.
type executor struct {
	parallelism int
	tracer      trace.Tracer
	logger      logging.Logger
}

// execute runs invs and returns once all of them are done. announce emits
// tool-call-started first; resumed invocations were announced before the
// pause.
func (e *executor) execute(
	ctx context.Context,
	rc *core.RunContext,
	tools *tool.Set,
	invs []*core.ToolInvocation,
	announce bool,
	emit func(core.Event),
) {
	if len(invs) == 0 {
		return
	}

	start := time.Now()

	if len(invs) == 1 {
		e.run(ctx, rc, tools, invs[0], announce, emit)
	} else {
		// Not errgroup.WithContext: one failure must not cancel the others.
		var g errgroup.Group
		if e.parallelism > 0 {
			g.SetLimit(e.parallelism)
		}
		for _, inv := range invs {
			g.Go(func() error {
				e.run(ctx, rc, tools, inv, announce, emit)
				return nil
			})
		}
		_ = g.Wait()
	}

	rc.LogDebug(
		"runner.tools.batch.complete",
		"count", len(invs),
		"parallelism", e.parallelism,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (e *executor) run(
	ctx context.Context,
	rc *core.RunContext,
	tools *tool.Set,
	inv *core.ToolInvocation,
	announce bool,
	emit func(core.Event),
) {
	rec := rc.Record
	if announce {
		emit(core.NewInvocationEvent(core.EventToolCallStarted, rec, inv))
	}

	t, found := tools.Get(inv.ToolName)
	switch {
	case ctx.Err() != nil:
		inv.SetError(tool.NewToolError(inv.ToolName, "run cancelled before the call started", tool.CodeExecution).Error())
	case !found:
		inv.SetError(tool.NewToolError(inv.ToolName, "tool not found", tool.CodeNotFound).Error())
	case !rc.Limiter.TryTool():
		inv.SetError(tool.NewToolError(inv.ToolName, "tool call limit reached", tool.CodeLimit).Error())
	default:
		e.call(ctx, rc, t, inv)
	}

	emit(core.NewInvocationEvent(core.EventToolCallCompleted, rec, inv))
}

func (e *executor) call(ctx context.Context, rc *core.RunContext, t tool.Tool, inv *core.ToolInvocation) {
	ctx, span := startSpan(ctx, e.tracer, spanTool,
		attribute.String("tool.name", inv.ToolName),
		attribute.String("tool.call_id", inv.ID),
		attribute.String("run.id", rc.RunID()),
	)

	// Cancel stops the run between steps; a call that already started runs
	// to completion.
	tc := core.NewToolContext(rc.WithContext(context.WithoutCancel(ctx)), inv)

	inv.StartedAt = time.Now().UTC()
	result, err := safeCall(t, tc, inv.Args())
	inv.CompletedAt = time.Now().UTC()
	inv.Executed = true

	if err != nil {
		terr := &core.ToolExecutionError{Tool: inv.ToolName, CallID: inv.ID, Err: err}
		inv.SetError(err.Error())
		rc.LogWarn("runner.tool.failed", "tool", inv.ToolName, "call_id", inv.ID, "error", terr)
		endSpan(span, terr, "tool execution failed")
	} else {
		inv.SetResult(result)
		endSpan(span, nil, "")
	}

	logging.LogToolCall(e.logger, inv.ToolName, inv.CompletedAt.Sub(inv.StartedAt), err)
}

func safeCall(t tool.Tool, tc *core.ToolContext, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
			tc.LogError("runner.tool.panic", "recover", r)
		}
	}()
	return t.Call(tc, args)
}

// panicError is the error recorded for a tool that panicked.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("tool panicked: %v", p.value) }
