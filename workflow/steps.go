package workflow

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanStep = "agentrun.workflow.step"

// Steps runs a fixed sequence of steps, chaining each output into the next
// input.
type Steps struct {
	name  string
	steps []Step
}

// NewSteps creates a sequence.
func NewSteps(name string, steps ...Step) *Steps {
	return &Steps{name: name, steps: steps}
}

// Name implements Step.
func (s *Steps) Name() string { return s.name }

// Execute implements Step.
func (s *Steps) Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error) {
	if len(s.steps) == 0 {
		return []*StepOutput{{Step: s.name, Executor: ExecutorSteps, Content: "no steps to execute"}}, nil
	}
	outs, _, _, err := sequence(ctx, in, s.steps)
	return outs, err
}

// sequence runs steps in order. It returns every output, the input the next
// step would see and whether an output requested a stop.
func sequence(ctx context.Context, in *StepInput, steps []Step) ([]*StepOutput, *StepInput, bool, error) {
	var all []*StepOutput
	cur := in

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return all, cur, false, err
		}

		outs, err := runStep(ctx, cur, step)
		if err != nil {
			return all, cur, false, err
		}
		if len(outs) == 0 {
			continue
		}

		all = append(all, outs...)
		cur = cur.with(step.Name(), outs[len(outs)-1])

		if stopRequested(outs) {
			cur.log().Info("workflow.sequence.stop", "step", step.Name())
			return all, cur, true, nil
		}
	}

	return all, cur, false, nil
}

// runStep executes one step inside a span and wraps its failure.
func runStep(ctx context.Context, in *StepInput, step Step) ([]*StepOutput, error) {
	if in.tracer != nil {
		var span trace.Span
		ctx, span = in.tracer.Start(ctx, spanStep, trace.WithAttributes(attribute.String("workflow.step", step.Name())))
		defer span.End()

		outs, err := execute(ctx, in, step)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
		}
		return outs, err
	}
	return execute(ctx, in, step)
}

func execute(ctx context.Context, in *StepInput, step Step) ([]*StepOutput, error) {
	start := time.Now()
	in.log().Debug("workflow.step.start", "step", step.Name())

	outs, err := step.Execute(ctx, in)
	if err != nil {
		in.log().Warn("workflow.step.failed", "step", step.Name(), "error", err)
		var stepErr *StepError
		if !errors.As(err, &stepErr) {
			err = &StepError{Step: step.Name(), Err: err}
		}
		return outs, err
	}

	in.log().Debug("workflow.step.end", "step", step.Name(), "outputs", len(outs), "duration_ms", time.Since(start).Milliseconds())
	return outs, nil
}

func stopRequested(outs []*StepOutput) bool {
	for _, out := range outs {
		if out.Stop {
			return true
		}
	}
	return false
}
