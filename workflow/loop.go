package workflow

import (
	"context"
	"time"
)

// Loop repeats its steps. Each iteration runs them as a sequence and
// continues from the previous iteration's outputs. The loop ends after
// MaxIterations, when the end condition accepts an iteration's outputs, or
// when a step requests a stop.
type Loop struct {
	name          string
	steps         []Step
	maxIterations int
	interval      time.Duration
	endCondition  func(outs []*StepOutput) bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithMaxIterations caps the number of iterations. Defaults to 3.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) { l.maxIterations = n }
}

// WithInterval waits d between iterations.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) { l.interval = d }
}

// WithEndCondition ends the loop once fn returns true for the outputs of an
// iteration.
//
//	WithEndCondition(func(outs []*StepOutput) bool {
//	    return strings.Contains(outs[len(outs)-1].Content, "APPROVED")
//	})
func WithEndCondition(fn func(outs []*StepOutput) bool) LoopOption {
	return func(l *Loop) { l.endCondition = fn }
}

// NewLoop creates a loop over steps.
func NewLoop(name string, steps []Step, opts ...LoopOption) *Loop {
	l := &Loop{name: name, steps: steps, maxIterations: 3}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Name implements Step.
func (l *Loop) Name() string { return l.name }

// Execute implements Step. It returns the outputs of all iterations.
func (l *Loop) Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error) {
	var all []*StepOutput
	cur := in

	for i := 0; i < l.maxIterations; i++ {
		outs, next, stopped, err := sequence(ctx, cur, l.steps)
		all = append(all, outs...)
		if err != nil {
			return all, err
		}
		cur = next

		if stopped {
			in.log().Info("workflow.loop.stop", "loop", l.name, "iteration", i+1)
			break
		}
		if l.endCondition != nil && l.endCondition(outs) {
			in.log().Debug("workflow.loop.end_condition", "loop", l.name, "iteration", i+1)
			break
		}

		if l.interval > 0 && i < l.maxIterations-1 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(l.interval):
			}
		}
	}

	return all, nil
}
