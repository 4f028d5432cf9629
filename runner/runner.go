package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/gate"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/session"
)

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// MaxModelCalls limits model calls per run. Zero means unlimited.
	MaxModelCalls int
	// MaxToolCalls limits tool executions per run. Zero means unlimited.
	MaxToolCalls int
	// ToolParallelism limits concurrent tool executions of one model
	// response. Zero or less means one goroutine per call.
	ToolParallelism int
	// EventBufferSize sets the buffer of streaming event channels.
	EventBufferSize int
	// RetainRuns is how many finished runs Record and Events remember.
	RetainRuns int

	// SessionStore persists sessions. Ignored when Sessions is set.
	SessionStore core.SessionStore
	// Sessions shares a session manager between runners.
	Sessions *session.Manager

	// MemoryStore and MemoryExtractor enable long-term memory updates after
	// completed turns. Both are required.
	MemoryStore     core.MemoryStore
	MemoryExtractor MemoryExtractor

	Gate   *gate.Gate
	Tracer trace.Tracer
	Logger logging.Logger
}

// Input starts a turn.
type Input struct {
	SessionID string
	UserID    string
	Message   string
}

// Runner drives turns of one target. Public methods are safe for concurrent use.
type Runner struct {
	target agent.Target

	maxModelCalls   int
	maxToolCalls    int
	eventBufferSize int
	retainRuns      int

	sessions  *session.Manager
	memory    core.MemoryStore
	extractor MemoryExtractor
	gate      *gate.Gate
	executor  *executor
	tracer    trace.Tracer
	logger    logging.Logger

	delegations sync.Map // member name -> *sync.Mutex

	mu         sync.RWMutex
	activeRuns map[string]*activeRun
	runs       map[string]*runState
	finished   []string
}

// activeRun tracks a run between activation and release.
type activeRun struct {
	cancel    context.CancelFunc
	requested bool           // Cancel was called
	settled   core.RunStatus // set once the run decided to pause or complete
}

type runState struct {
	record *core.RunRecord
	events []core.Event
}

// New constructs a Runner for target with optional overrides.
func New(target agent.Target, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxModelCalls:   50,
		ToolParallelism: 8,
		EventBufferSize: 100,
		RetainRuns:      1000,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(opts.SessionStore, func(o *session.ManagerOptions) { o.Logger = opts.Logger })
	}
	if opts.Gate == nil {
		opts.Gate = gate.New()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/hupe1980/agentrun/runner")
	}

	return &Runner{
		target:          target,
		maxModelCalls:   opts.MaxModelCalls,
		maxToolCalls:    opts.MaxToolCalls,
		eventBufferSize: opts.EventBufferSize,
		retainRuns:      opts.RetainRuns,
		sessions:        opts.Sessions,
		memory:          opts.MemoryStore,
		extractor:       opts.MemoryExtractor,
		gate:            opts.Gate,
		executor:        &executor{parallelism: opts.ToolParallelism, tracer: opts.Tracer, logger: opts.Logger},
		tracer:          opts.Tracer,
		logger:          opts.Logger,
		activeRuns:      make(map[string]*activeRun),
		runs:            make(map[string]*runState),
	}
}

// Target returns the agent or team the runner drives.
func (r *Runner) Target() agent.Target { return r.target }

// Sessions returns the session manager.
func (r *Runner) Sessions() *session.Manager { return r.sessions }

// Start runs a new turn and returns the completed, paused, failed or
// cancelled record. Model provider failures are returned verbatim together
// with the failed record; a cancelled run returns core.ErrRunCancelled.
func (r *Runner) Start(ctx context.Context, in Input) (*core.RunRecord, error) {
	m, err := r.prepareStart(ctx, in, nil)
	if err != nil {
		return nil, err
	}
	return m.drive(m.start)
}

// Resume continues a paused record after the caller resolved every pending
// invocation. It fails with *core.InvalidResumeError, before doing anything,
// if the record is not paused or an invocation is still unresolved.
func (r *Runner) Resume(ctx context.Context, rec *core.RunRecord) (*core.RunRecord, error) {
	m, err := r.prepareResume(ctx, rec, nil)
	if err != nil {
		return nil, err
	}
	return m.drive(m.resume)
}

// StartStream starts a turn on a background goroutine. The returned channel
// yields the lifecycle events of the turn and is closed after the terminal
// event. Input errors are returned synchronously.
func (r *Runner) StartStream(ctx context.Context, in Input) (<-chan core.Event, error) {
	events := make(chan core.Event, r.eventBufferSize)
	m, err := r.prepareStart(ctx, in, newEmitter(ctx, events))
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(events)
		_, _ = m.drive(m.start)
	}()
	return events, nil
}

// ResumeStream is the streaming variant of Resume. Invalid resumes are
// reported synchronously and no goroutine is started.
func (r *Runner) ResumeStream(ctx context.Context, rec *core.RunRecord) (<-chan core.Event, error) {
	events := make(chan core.Event, r.eventBufferSize)
	m, err := r.prepareResume(ctx, rec, newEmitter(ctx, events))
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(events)
		_, _ = m.drive(m.resume)
	}()
	return events, nil
}

// Cancel stops a running run. In-flight tool executions finish, no further
// model call is made and the run ends cancelled. Only running runs can be
// cancelled; a paused run is simply never resumed. A nil error means the run
// will end cancelled.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	run, active := r.activeRuns[runID]
	if active && run.settled == "" {
		run.requested = true
		r.mu.Unlock()

		r.logger.Info("runner.run.cancel", "run_id", runID)
		run.cancel()
		return nil
	}
	st, known := r.runs[runID]
	r.mu.Unlock()

	switch {
	case active:
		return fmt.Errorf("run %s: %w: run is already %s", runID, core.ErrInvalidRunStateTransition, run.settled)
	case !known:
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	default:
		return fmt.Errorf("run %s: %w: cannot cancel a %s run", runID, core.ErrInvalidRunStateTransition, st.record.Status)
	}
}

// Record returns a snapshot of the latest state of a run.
func (r *Runner) Record(runID string) (*core.RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.runs[runID]
	if !ok {
		return nil, false
	}
	return st.record.Clone(), true
}

// Events returns the events emitted for a run so far, across start and
// resume calls.
func (r *Runner) Events(runID string) []core.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.runs[runID]
	if !ok {
		return nil
	}
	return append([]core.Event(nil), st.events...)
}

// SessionState returns the local state bag of the target.
func (r *Runner) SessionState() *core.StateBag { return r.target.State() }

// TeamState returns the team-shared bag of the target, nil outside teams.
func (r *Runner) TeamState() *core.StateBag { return r.target.SharedState() }

func (r *Runner) prepareStart(ctx context.Context, in Input, em *emitter) (*machine, error) {
	if in.Message == "" {
		return nil, errors.New("input message must not be empty")
	}
	if in.SessionID == "" {
		in.SessionID = core.NewID()
	}

	sess, err := r.sessions.Activate(ctx, in.SessionID, in.UserID, r.target.Name(), r.target.State(), r.target.SharedState())
	if err != nil {
		return nil, err
	}

	rec := core.NewRunRecord(in.SessionID, in.UserID, r.target.Name())
	if err := rec.Transition(core.RunStatusRunning); err != nil {
		return nil, err
	}

	m := r.newMachine(r.target, rec, sess, em)
	m.input = in.Message
	m.ctx, m.release = r.activate(ctx, rec)
	return m, nil
}

func (r *Runner) prepareResume(ctx context.Context, rec *core.RunRecord, em *emitter) (*machine, error) {
	if rec == nil {
		return nil, errors.New("run record must not be nil")
	}

	runCtx, release, err := r.claim(ctx, rec)
	if err != nil {
		return nil, err
	}

	sess, err := r.sessions.Activate(ctx, rec.SessionID, rec.UserID, r.target.Name(), r.target.State(), r.target.SharedState())
	if err != nil {
		release()
		return nil, err
	}

	if err := rec.Transition(core.RunStatusRunning); err != nil {
		release()
		return nil, err
	}

	m := r.newMachine(r.target, rec, sess, em)
	m.ctx, m.release = runCtx, release
	return m, nil
}

// claim validates a resume and marks the run active, so that concurrent
// resumes of copies of the same record cannot both proceed.
func (r *Runner) claim(ctx context.Context, rec *core.RunRecord) (context.Context, func(), error) {
	var unresolved []core.UnresolvedInvocation
	for _, inv := range rec.Pending() {
		if reason := inv.UnresolvedReason(); reason != "" {
			unresolved = append(unresolved, core.UnresolvedInvocation{ID: inv.ID, ToolName: inv.ToolName, Reason: reason})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	status := rec.Status
	if st, ok := r.runs[rec.ID]; ok && st.record.Status != core.RunStatusPaused {
		status = st.record.Status
	}
	if _, active := r.activeRuns[rec.ID]; active {
		status = core.RunStatusRunning
	}

	if status != core.RunStatusPaused {
		return nil, nil, &core.InvalidResumeError{RunID: rec.ID, Status: status}
	}
	if len(unresolved) > 0 {
		return nil, nil, &core.InvalidResumeError{RunID: rec.ID, Status: status, Unresolved: unresolved}
	}

	runCtx, release := r.activateLocked(ctx, rec)
	return runCtx, release, nil
}

func (r *Runner) newMachine(target agent.Target, rec *core.RunRecord, sess *core.SessionRecord, em *emitter) *machine {
	limiter := core.NewCallLimiter(r.maxModelCalls, r.maxToolCalls, rec.ModelCalls, rec.ToolCalls)
	rc := core.NewRunContext(context.Background(), rec, agent.Info(target), target.State(), target.SharedState(), limiter, r.logger)

	m := &machine{
		runner:  r,
		target:  target,
		rc:      rc,
		session: sess,
		emitter: em,
	}
	if _, ok := target.(agent.Delegator); ok {
		rc.Delegate = m.delegate
	}
	return m
}

// activate registers a running run and returns its cancellable context and
// the function that unregisters it.
func (r *Runner) activate(ctx context.Context, rec *core.RunRecord) (context.Context, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activateLocked(ctx, rec)
}

func (r *Runner) activateLocked(ctx context.Context, rec *core.RunRecord) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	r.activeRuns[rec.ID] = &activeRun{cancel: cancel}
	st, ok := r.runs[rec.ID]
	if !ok {
		st = &runState{}
		r.runs[rec.ID] = st
	}
	st.record = rec.Clone()
	st.record.Status = core.RunStatusRunning

	return ctx, func() {
		cancel()
		r.mu.Lock()
		delete(r.activeRuns, rec.ID)
		r.mu.Unlock()
	}
}

// settle marks a running run as about to pause or complete. It reports false
// when a cancellation was requested first; the run must then end cancelled.
func (r *Runner) settle(runID string, to core.RunStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.activeRuns[runID]
	if !ok {
		return true
	}
	if run.requested {
		return false
	}
	run.settled = to
	return true
}

func (r *Runner) track(rec *core.RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.runs[rec.ID]
	if !ok {
		st = &runState{}
		r.runs[rec.ID] = st
	}
	st.record = rec.Clone()

	if rec.Status.IsTerminal() {
		r.finished = append(r.finished, rec.ID)
		r.evict()
	}
}

func (r *Runner) evict() {
	if r.retainRuns <= 0 {
		return
	}
	for len(r.finished) > r.retainRuns {
		delete(r.runs, r.finished[0])
		r.finished = r.finished[1:]
	}
}

func (r *Runner) logEvent(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.runs[ev.RunID]; ok {
		st.events = append(st.events, ev)
	}
}
