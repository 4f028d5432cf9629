package workflow

import "context"

// Condition runs its steps as a sequence when evaluate accepts the input and
// is skipped otherwise.
type Condition struct {
	name     string
	evaluate func(in *StepInput) bool
	steps    []Step
}

// NewCondition creates a conditional step.
func NewCondition(name string, evaluate func(in *StepInput) bool, steps ...Step) *Condition {
	return &Condition{name: name, evaluate: evaluate, steps: steps}
}

// Name implements Step.
func (c *Condition) Name() string { return c.name }

// Execute implements Step.
func (c *Condition) Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error) {
	if !c.evaluate(in) {
		in.log().Debug("workflow.condition.skipped", "condition", c.name, "steps", len(c.steps))
		return nil, nil
	}
	outs, _, _, err := sequence(ctx, in, c.steps)
	return outs, err
}

// Router selects the steps to run from the input and runs them as a
// sequence. Selecting none skips the router.
type Router struct {
	name  string
	route func(in *StepInput) []Step
}

// NewRouter creates a routing step.
func NewRouter(name string, route func(in *StepInput) []Step) *Router {
	return &Router{name: name, route: route}
}

// Name implements Step.
func (r *Router) Name() string { return r.name }

// Execute implements Step.
func (r *Router) Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error) {
	steps := r.route(in)
	if len(steps) == 0 {
		in.log().Debug("workflow.router.no_route", "router", r.name)
		return nil, nil
	}

	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	in.log().Debug("workflow.router.selected", "router", r.name, "steps", names)

	outs, _, _, err := sequence(ctx, in, steps)
	return outs, err
}
