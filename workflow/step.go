package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/runner"
)

// Executor kinds reported on step outputs.
const (
	ExecutorAgent    = "agent"
	ExecutorTeam     = "team"
	ExecutorFunction = "function"
	ExecutorSteps    = "steps"
	ExecutorParallel = "parallel"
)

// ErrStepPaused is returned when an agent step's run pauses on a gated tool
// call. Workflows cannot resolve pending invocations.
var ErrStepPaused = errors.New("step paused on gated tool calls")

// StepError reports the step that failed a workflow.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Step is one unit of a workflow.
type Step interface {
	Name() string
	// Execute runs the step. Container steps return the outputs of all the
	// steps they ran; a step that was skipped returns none.
	Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error)
}

// StepOutput is the result of one step.
type StepOutput struct {
	Step     string `json:"step"`
	Executor string `json:"executor"`
	Content  string `json:"content"`

	// Parallel holds the individual outputs aggregated by a Parallel step.
	Parallel []*StepOutput `json:"parallel,omitempty"`

	// Record is the run behind an agent or team step.
	Record *core.RunRecord `json:"record,omitempty"`

	// Error is set when the step failed but the workflow went on.
	Error string `json:"error,omitempty"`

	// Stop ends the enclosing sequence after this step.
	Stop bool `json:"stop,omitempty"`
}

// Failed reports whether the step failed.
func (o *StepOutput) Failed() bool { return o.Error != "" }

// StepInput is what a step sees.
type StepInput struct {
	Message   string
	SessionID string
	UserID    string

	// Previous holds the last output of every earlier step by step name, in
	// execution order.
	Previous *orderedmap.OrderedMap[string, *StepOutput]

	logger logging.Logger
	tracer trace.Tracer
}

// NewStepInput creates the input of a first step.
func NewStepInput(message, sessionID, userID string) *StepInput {
	return &StepInput{
		Message:   message,
		SessionID: sessionID,
		UserID:    userID,
		Previous:  orderedmap.New[string, *StepOutput](),
	}
}

// StepOutput returns the output of an earlier step.
func (in *StepInput) StepOutput(name string) (*StepOutput, bool) {
	return in.Previous.Get(name)
}

// StepContent returns the content of an earlier step.
func (in *StepInput) StepContent(name string) (string, bool) {
	out, ok := in.Previous.Get(name)
	if !ok {
		return "", false
	}
	return out.Content, true
}

// LastContent returns the content of the most recent step, or "".
func (in *StepInput) LastContent() string {
	if last := in.Previous.Newest(); last != nil {
		return last.Value.Content
	}
	return ""
}

// AllContent joins the content of every earlier step under its name.
func (in *StepInput) AllContent() string {
	parts := make([]string, 0, in.Previous.Len())
	for pair := in.Previous.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Content != "" {
			parts = append(parts, fmt.Sprintf("=== %s ===\n%s", pair.Key, pair.Value.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}

// Prompt is the message an agent step sends: the previous step's content, or
// the workflow message for the first step.
func (in *StepInput) Prompt() string {
	if content := in.LastContent(); content != "" {
		return content
	}
	return in.Message
}

// with returns a copy of in that records out as the latest output of step.
func (in *StepInput) with(step string, out *StepOutput) *StepInput {
	next := *in
	next.Previous = orderedmap.New[string, *StepOutput](orderedmap.WithCapacity[string, *StepOutput](in.Previous.Len() + 1))
	for pair := in.Previous.Oldest(); pair != nil; pair = pair.Next() {
		next.Previous.Set(pair.Key, pair.Value)
	}
	// Re-running a step moves it to the end.
	next.Previous.Delete(step)
	next.Previous.Set(step, out)
	return &next
}

func (in *StepInput) log() logging.Logger {
	if in.logger == nil {
		return logging.NoOpLogger{}
	}
	return in.logger
}

// StepOptions configures agent and function steps.
type StepOptions struct {
	// Retries is the number of additional attempts after a failure.
	Retries int
	// SkipOnFailure turns a final failure into a failed output instead of
	// failing the workflow.
	SkipOnFailure bool
}

func newStepOptions(optFns []func(o *StepOptions)) StepOptions {
	var opts StepOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return opts
}

// attempt calls fn up to 1+Retries times. Cancellation is never retried or
// skipped.
func (o StepOptions) attempt(ctx context.Context, in *StepInput, name, executor string, fn func() (*StepOutput, error)) ([]*StepOutput, error) {
	var err error
	for i := 0; i <= o.Retries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var out *StepOutput
		out, err = fn()
		if err == nil {
			out.Step, out.Executor = name, executor
			return []*StepOutput{out}, nil
		}
		if errors.Is(err, core.ErrRunCancelled) || ctx.Err() != nil {
			return nil, err
		}

		in.log().Warn("workflow.step.attempt_failed", "step", name, "attempt", i+1, "error", err)
	}

	if o.SkipOnFailure {
		in.log().Warn("workflow.step.skipped", "step", name, "error", err)
		return []*StepOutput{{
			Step:     name,
			Executor: executor,
			Content:  fmt.Sprintf("step %s failed but was skipped", name),
			Error:    err.Error(),
		}}, nil
	}

	return nil, err
}

// AgentStep runs an agent or team through a runner. Its prompt is the
// previous step's content.
type AgentStep struct {
	name   string
	runner *runner.Runner
	opts   StepOptions
}

// NewAgentStep creates a step that starts a run on r.
func NewAgentStep(name string, r *runner.Runner, optFns ...func(o *StepOptions)) *AgentStep {
	return &AgentStep{name: name, runner: r, opts: newStepOptions(optFns)}
}

// Name implements Step.
func (s *AgentStep) Name() string { return s.name }

// Execute implements Step.
func (s *AgentStep) Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error) {
	executor := ExecutorAgent
	if _, ok := s.runner.Target().(agent.Delegator); ok {
		executor = ExecutorTeam
	}

	return s.opts.attempt(ctx, in, s.name, executor, func() (*StepOutput, error) {
		rec, err := s.runner.Start(ctx, runner.Input{
			SessionID: in.SessionID,
			UserID:    in.UserID,
			Message:   in.Prompt(),
		})
		if err != nil {
			return nil, err
		}
		if rec.IsPaused() {
			names := make([]string, 0, len(rec.PendingIDs))
			for _, inv := range rec.Pending() {
				names = append(names, inv.ToolName)
			}
			return nil, fmt.Errorf("%w: %s", ErrStepPaused, strings.Join(names, ", "))
		}
		return &StepOutput{Content: rec.Content(), Record: rec}, nil
	})
}

// StepFunc is the body of a function step. Returning a nil output with a nil
// error produces an empty output.
type StepFunc func(ctx context.Context, in *StepInput) (*StepOutput, error)

// FuncStep runs a Go function.
type FuncStep struct {
	name string
	fn   StepFunc
	opts StepOptions
}

// NewFuncStep creates a step that calls fn.
func NewFuncStep(name string, fn StepFunc, optFns ...func(o *StepOptions)) *FuncStep {
	return &FuncStep{name: name, fn: fn, opts: newStepOptions(optFns)}
}

// Name implements Step.
func (s *FuncStep) Name() string { return s.name }

// Execute implements Step.
func (s *FuncStep) Execute(ctx context.Context, in *StepInput) ([]*StepOutput, error) {
	return s.opts.attempt(ctx, in, s.name, ExecutorFunction, func() (out *StepOutput, err error) {
		defer func() {
			if r := recover(); r != nil {
				in.log().Error("workflow.step.panic", "step", s.name, "recover", r, "stack", string(debug.Stack()))
				out, err = nil, fmt.Errorf("step panicked: %v", r)
			}
		}()

		out, err = s.fn(ctx, in)
		if err == nil && out == nil {
			out = &StepOutput{}
		}
		return out, err
	})
}
