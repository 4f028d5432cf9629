package workflow

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Parallel runs its steps concurrently on the same input and aggregates their
// outputs into one. A failing branch becomes a failed output; the others are
// unaffected.
type Parallel struct {
	name  string
	steps []Step
	limit int
}

// NewParallel creates a parallel step.
func NewParallel(name string, steps ...Step) *Parallel {
	return &Parallel{name: name, steps: steps}
}

// WithLimit bounds the number of branches running at once. Zero means no
// limit.
func (p *Parallel) WithLimit(n int) *Parallel {
	p.limit = n
	return p
}

// Name implements Step.
func (p *Parallel) Name() string { return p.name }

// Execute implements Step.
func (p *Parallel) Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error) {
	results := make([][]*StepOutput, len(p.steps))

	// Not errgroup.WithContext: one failing branch must not cancel the others.
	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, step := range p.steps {
		g.Go(func() error {
			outs, err := runStep(ctx, in, step)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				outs = []*StepOutput{{
					Step:    step.Name(),
					Content: fmt.Sprintf("step %s failed: %v", step.Name(), err),
					Error:   err.Error(),
				}}
			}
			results[i] = outs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat []*StepOutput
	for _, outs := range results {
		flat = append(flat, outs...)
	}

	return []*StepOutput{p.aggregate(flat)}, nil
}

func (p *Parallel) aggregate(outs []*StepOutput) *StepOutput {
	agg := &StepOutput{Step: p.name, Executor: ExecutorParallel, Parallel: outs}

	switch len(outs) {
	case 0:
		agg.Content = "no parallel steps executed"
		return agg
	case 1:
		agg.Content = outs[0].Content
		agg.Error = outs[0].Error
		agg.Stop = outs[0].Stop
		return agg
	}

	var b strings.Builder
	b.WriteString("## Parallel Execution Results\n")

	var failed []string
	for _, out := range outs {
		status := "SUCCESS"
		if out.Failed() {
			status = "FAILURE"
			failed = append(failed, out.Step)
		}
		fmt.Fprintf(&b, "\n### %s (%s)\n%s\n", out.Step, status, out.Content)
		agg.Stop = agg.Stop || out.Stop
	}

	agg.Content = b.String()
	if len(failed) > 0 {
		agg.Error = "failed branches: " + strings.Join(failed, ", ")
	}
	return agg
}
