package runner

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrun/core"
)

// Span names.
const (
	spanRun      = "agentrun.run"
	spanModel    = "agentrun.model.generate"
	spanTool     = "agentrun.tool.execute"
	spanDelegate = "agentrun.team.delegate"
	spanMemory   = "agentrun.memory.update"
)

func runAttributes(rec *core.RunRecord) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("run.id", rec.ID),
		attribute.String("session.id", rec.SessionID),
		attribute.String("target", rec.Target),
	}
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records the outcome of the span and ends it.
func endSpan(span trace.Span, err error, msg string) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
