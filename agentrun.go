// Package agentrun is a façade over the run engine. It wires in-memory
// defaults for sessions and memories, builds a runner for one agent or team
// and offers synchronous helpers that drain the event stream.
//
// Typical use:
//  1. Build a target with agent.New or agent.NewTeam
//  2. Create an AgentRun via New (or FromConfig for file-based setups)
//  3. Call Run, inspect the returned record and, when it is paused, resolve
//     its pending invocations and call Continue
package agentrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/gate"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/memory"
	"github.com/hupe1980/agentrun/runner"
	"github.com/hupe1980/agentrun/session"
)

// Options configures an AgentRun.
type Options struct {
	MaxModelCalls   int
	MaxToolCalls    int
	ToolParallelism int
	EventBufferSize int

	// Stores default to in-memory implementations.
	SessionStore core.SessionStore
	MemoryStore  core.MemoryStore

	// MemoryExtractor enables memory updates after completed turns.
	MemoryExtractor runner.MemoryExtractor

	Gate   *gate.Gate
	Logger logging.Logger

	// closers are released by Close.
	closers []func() error
}

// AgentRun bundles a runner with its stores.
type AgentRun struct {
	runner  *runner.Runner
	opts    Options
	closers []func() error
}

// New creates an AgentRun for target.
func New(target agent.Target, optFns ...func(o *Options)) *AgentRun {
	opts := Options{
		MaxModelCalls:   50,
		ToolParallelism: 8,
		EventBufferSize: 100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.MemoryStore == nil {
		opts.MemoryStore = memory.NewInMemoryStore()
	}

	r := runner.New(target, func(o *runner.Options) {
		o.MaxModelCalls = opts.MaxModelCalls
		o.MaxToolCalls = opts.MaxToolCalls
		o.ToolParallelism = opts.ToolParallelism
		o.EventBufferSize = opts.EventBufferSize
		o.SessionStore = opts.SessionStore
		o.MemoryStore = opts.MemoryStore
		o.MemoryExtractor = opts.MemoryExtractor
		o.Gate = opts.Gate
		o.Logger = opts.Logger
	})

	return &AgentRun{runner: r, opts: opts, closers: opts.closers}
}

// Runner returns the underlying runner.
func (a *AgentRun) Runner() *runner.Runner { return a.runner }

// Sessions returns the session manager.
func (a *AgentRun) Sessions() *session.Manager { return a.runner.Sessions() }

// MemoryStore returns the long-term memory store.
func (a *AgentRun) MemoryStore() core.MemoryStore { return a.opts.MemoryStore }

// Stream starts a turn and returns its event channel.
func (a *AgentRun) Stream(ctx context.Context, in runner.Input) (<-chan core.Event, error) {
	return a.runner.StartStream(ctx, in)
}

// Run starts a turn and waits for it to complete, pause or fail. It returns
// the final record and every event of the call.
func (a *AgentRun) Run(ctx context.Context, in runner.Input) (*core.RunRecord, []core.Event, error) {
	events, err := a.runner.StartStream(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return drain(ctx, events)
}

// Continue resumes a paused record and waits like Run.
func (a *AgentRun) Continue(ctx context.Context, rec *core.RunRecord) (*core.RunRecord, []core.Event, error) {
	events, err := a.runner.ResumeStream(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	return drain(ctx, events)
}

// Cancel stops a running turn.
func (a *AgentRun) Cancel(runID string) error { return a.runner.Cancel(runID) }

// Close releases stores opened by FromConfig.
func (a *AgentRun) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// drain collects events until the channel closes. The record comes from the
// terminal event; failed and cancelled runs are also reported as errors, as
// the same value Runner.Start would return.
func drain(ctx context.Context, events <-chan core.Event) (*core.RunRecord, []core.Event, error) {
	var (
		collected []core.Event
		rec       *core.RunRecord
		runErr    error
	)

	for {
		select {
		case <-ctx.Done():
			return rec, collected, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				if rec == nil {
					return nil, collected, errors.New("event stream closed without a terminal event")
				}
				return rec, collected, runError(rec, runErr)
			}

			collected = append(collected, ev)
			if ev.Kind.IsTerminal() {
				rec, _ = ev.Record()
				runErr = ev.Err()
			}
		}
	}
}

func runError(rec *core.RunRecord, err error) error {
	if err != nil {
		return err
	}
	switch rec.Status {
	case core.RunStatusError:
		return fmt.Errorf("run %s failed: %s", rec.ID, rec.Error)
	case core.RunStatusCancelled:
		return fmt.Errorf("run %s: %w", rec.ID, core.ErrRunCancelled)
	default:
		return nil
	}
}
