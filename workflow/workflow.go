package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
)

const spanWorkflow = "agentrun.workflow.run"

// Options holds overrides passed to New.
type Options struct {
	Logger logging.Logger
	Tracer trace.Tracer
}

// Input starts a workflow run. An empty SessionID gets a fresh one, shared by
// every agent step of the run.
type Input struct {
	SessionID string
	UserID    string
	Message   string
}

// Result is the outcome of a workflow run.
type Result struct {
	ID        string        `json:"id"`
	Workflow  string        `json:"workflow"`
	SessionID string        `json:"session_id"`
	Outputs   []*StepOutput `json:"outputs"`
	// Content is the content of the last output.
	Content     string    `json:"content"`
	Stopped     bool      `json:"stopped,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Workflow runs top-level steps in order.
type Workflow struct {
	name   string
	steps  []Step
	logger logging.Logger
	tracer trace.Tracer
}

// New creates a workflow. Top-level step names must be unique.
func New(name string, steps []Step, optFns ...func(o *Options)) (*Workflow, error) {
	if name == "" {
		return nil, errors.New("workflow name must not be empty")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow %s has no steps", name)
	}

	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("workflow %s: step %d is nil", name, i)
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("workflow %s: duplicate step name %q", name, s.Name())
		}
		seen[s.Name()] = struct{}{}
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/hupe1980/agentrun/workflow")
	}

	return &Workflow{name: name, steps: steps, logger: opts.Logger, tracer: opts.Tracer}, nil
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Run executes the workflow. On failure the partial result is returned
// together with a *StepError naming the failed step.
func (w *Workflow) Run(ctx context.Context, in Input) (*Result, error) {
	if in.Message == "" {
		return nil, errors.New("input message must not be empty")
	}
	if in.SessionID == "" {
		in.SessionID = core.NewID()
	}

	res := &Result{
		ID:        core.NewID(),
		Workflow:  w.name,
		SessionID: in.SessionID,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := w.tracer.Start(ctx, spanWorkflow, trace.WithAttributes(
		attribute.String("workflow", w.name),
		attribute.String("workflow.run_id", res.ID),
		attribute.String("session.id", in.SessionID),
	))
	defer span.End()

	stepIn := NewStepInput(in.Message, in.SessionID, in.UserID)
	stepIn.logger = w.logger
	stepIn.tracer = w.tracer

	w.logger.Info("workflow.run.start", "workflow", w.name, "run_id", res.ID, "session_id", in.SessionID, "steps", len(w.steps))

	outs, _, stopped, err := sequence(ctx, stepIn, w.steps)

	res.Outputs = outs
	res.Stopped = stopped
	res.CompletedAt = time.Now().UTC()
	if len(outs) > 0 {
		res.Content = outs[len(outs)-1].Content
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow failed")
		w.logger.Error("workflow.run.failed", "workflow", w.name, "run_id", res.ID, "error", err)
		return res, err
	}

	span.SetStatus(codes.Ok, "")
	w.logger.Info("workflow.run.end",
		"workflow", w.name,
		"run_id", res.ID,
		"outputs", len(outs),
		"stopped", stopped,
		"duration_ms", res.CompletedAt.Sub(res.StartedAt).Milliseconds(),
	)
	return res, nil
}
