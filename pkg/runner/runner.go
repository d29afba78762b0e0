package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/plaintext"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/session"
)

// Resolver supplies command definitions by name. The root arbor.App
// implements it; tests use a map.
type Resolver interface {
	Resolve(name string) (domain.Command, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (domain.Command, bool)

// Resolve calls f.
func (f ResolverFunc) Resolve(name string) (domain.Command, bool) { return f(name) }

// Runner executes commands against one render context. It owns the
// per-invocation binding: the context handed to a handler carries the
// render context and the run's root scope, and the scope is released on
// every exit path, including panics.
type Runner struct {
	resolver Resolver
	rc       *render.Context
	store    ports.RunStore
	sessions *session.Manager
	hooks    domain.Hooks
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]*Run
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStore enables run record persistence. Every finished run is saved;
// save failures are logged, never turned into run faults.
func WithStore(store ports.RunStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithHooks registers lifecycle hooks fired at run start and end.
func WithHooks(hooks domain.Hooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithSessions enables per-session run serialization: requests carrying
// the same session key execute one at a time.
func WithSessions(m *session.Manager) Option {
	return func(r *Runner) {
		r.sessions = m
	}
}

// New creates a Runner executing commands from resolver against rc.
func New(resolver Resolver, rc *render.Context, opts ...Option) *Runner {
	r := &Runner{
		resolver: resolver,
		rc:       rc,
		logger:   logging.NewNop(),
		runs:     make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Context returns the render context this runner binds to its runs.
func (r *Runner) Context() *render.Context { return r.rc }

// Get returns an in-flight run by ID. Finished runs are dropped from the
// active set; look them up in the store instead.
func (r *Runner) Get(runID string) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	return run, ok
}

// Submit starts one invocation and returns without waiting for it unless
// the mode is immediate. The root scope is opened, and the binding
// established, on the submitting flow for every mode: a background
// worker inherits the same bound context rather than re-resolving a
// possibly different one.
func (r *Runner) Submit(ctx context.Context, req domain.Request) (*Run, error) {
	cmd, ok := r.resolver.Resolve(req.Command)
	if !ok {
		return nil, fmt.Errorf("%q: %w", req.Command, domain.ErrUnknownCommand)
	}
	args, err := cmd.ValidateArgs(req.Args)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = domain.ModeImmediate
		if cmd.Hints.Long {
			mode = domain.ModeBackground
		}
	}

	if mode == domain.ModeBackground {
		// The run outlives the submitting flow (an HTTP request, a tool
		// call). Values stay; only the cancellation is severed.
		ctx = context.WithoutCancel(ctx)
	}

	boundCtx, scope, closeScope := r.rc.OpenRoot(ctx)
	run := &Run{
		id:    uuid.NewString(),
		req:   req,
		scope: scope,
		done:  make(chan struct{}),
	}
	r.mu.Lock()
	r.runs[run.id] = run
	r.mu.Unlock()

	exec := func() { r.execute(boundCtx, run, cmd, args, mode, closeScope) }

	switch mode {
	case domain.ModeBackground:
		go exec()
	case domain.ModeQueued:
		if sched, ok := r.rc.Backend().(ports.Scheduler); ok {
			sched.Schedule(exec)
		} else {
			r.logger.Debug("backend has no scheduler, running queued request inline",
				"command", req.Command, "backend", r.rc.Backend().Name())
			exec()
		}
	default:
		exec()
	}
	return run, nil
}

// Execute submits req and waits for the result.
func (r *Runner) Execute(ctx context.Context, req domain.Request) (domain.Result, error) {
	run, err := r.Submit(ctx, req)
	if err != nil {
		return domain.Result{}, err
	}
	return run.Wait(ctx)
}

// Include runs another command's handler inline in the current scope:
// its emissions land in the caller's output, and its return value is
// handed back rather than auto-appended. The calling context must carry
// a binding; including outside a run is a programming error.
func (r *Runner) Include(ctx context.Context, name string, args domain.Args) (any, error) {
	if _, ok := render.FromContext(ctx); !ok {
		return nil, fmt.Errorf("include %q: %w", name, domain.ErrNoScope)
	}
	cmd, ok := r.resolver.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("include %q: %w", name, domain.ErrUnknownCommand)
	}
	validated, err := cmd.ValidateArgs(args)
	if err != nil {
		return nil, err
	}
	return r.invoke(ctx, cmd, validated)
}

// execute is the invocation boundary: the only place faults are caught,
// classified and converted into a Result. The render context and stacks
// below never swallow anything.
func (r *Runner) execute(ctx context.Context, run *Run, cmd domain.Command, args domain.Args, mode domain.Mode, closeScope func()) {
	start := time.Now()
	defer closeScope()

	r.fireStart(ctx, run, mode, start)

	if mode == domain.ModeBackground {
		// Build emissions as they happen so the run's output appears
		// while the worker is still executing.
		stop := r.rc.Follow(ctx, run.scope)
		defer stop()
	}

	var value any
	var err error
	body := func(ctx context.Context) error {
		value, err = r.invoke(ctx, cmd, args)
		return nil
	}
	if run.req.Session != "" && r.sessions != nil {
		if lockErr := r.sessions.WithLock(ctx, run.req.Session, body); lockErr != nil && err == nil {
			err = lockErr
		}
	} else {
		_ = body(ctx)
	}

	if err == nil && value != nil {
		if emitErr := render.Emit(ctx, value); emitErr != nil {
			r.logger.Error("failed to append return value", "command", cmd.Name, "err", emitErr)
		}
	}
	if err != nil {
		// The fault still gets a visible block after everything emitted
		// before it.
		_ = render.Emit(ctx, domain.ErrorText(err.Error()))
	}

	// The final walk. Background runs already built everything through
	// the follow observer; builds are cached so nothing duplicates.
	if buildErr := r.rc.BuildScope(ctx, run.scope); buildErr != nil && err == nil {
		err = buildErr
		errNode := domain.ErrorText(buildErr.Error())
		_ = render.Emit(ctx, errNode)
		if mountErr := r.rc.Immediate(ctx, errNode); mountErr != nil {
			r.logger.Error("failed to mount error block", "command", cmd.Name, "err", mountErr)
		}
	}

	transcript := plaintext.Transcript(run.scope.Stack().Snapshot(), r.rc.Children)
	tree, treeErr := r.rc.Tree(run.scope)
	if treeErr != nil {
		r.logger.Error("failed to marshal node tree", "command", cmd.Name, "err", treeErr)
	}

	res := domain.Result{
		RunID:      run.id,
		Command:    cmd.Name,
		Value:      value,
		Err:        err,
		Transcript: transcript,
		Tree:       tree,
		StartedAt:  start,
		Duration:   time.Since(start),
	}

	if r.store != nil {
		saveCtx := context.WithoutCancel(ctx)
		if saveErr := r.store.Save(saveCtx, domain.NewRecord(res, run.req)); saveErr != nil {
			r.logger.Error("failed to persist run record", "run_id", run.id, "err", saveErr)
		}
	}

	r.fireEnd(ctx, run, mode, res)

	r.mu.Lock()
	delete(r.runs, run.id)
	r.mu.Unlock()

	run.complete(res)
}

// invoke runs the handler with panic recovery. A panicking command is a
// fault, not a crashed process.
func (r *Runner) invoke(ctx context.Context, cmd domain.Command, args domain.Args) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("command %s panicked: %v", cmd.Name, p)
			r.logger.Error("command panicked", "command", cmd.Name, "panic", p)
		}
	}()
	return cmd.Handler(ctx, args)
}

func (r *Runner) fireStart(ctx context.Context, run *Run, mode domain.Mode, start time.Time) {
	r.logger.Debug("run started", "run_id", run.id, "command", run.req.Command, "mode", mode)
	if r.hooks.OnCommandStart == nil {
		return
	}
	r.hooks.OnCommandStart(ctx, &domain.CommandEvent{
		Timestamp: start,
		RunID:     run.id,
		Command:   run.req.Command,
		Mode:      mode,
		Status:    domain.StatusRunning,
	})
}

func (r *Runner) fireEnd(ctx context.Context, run *Run, mode domain.Mode, res domain.Result) {
	r.logger.Debug("run finished",
		"run_id", run.id, "command", run.req.Command, "status", res.Status(), "duration", res.Duration)
	if r.hooks.OnCommandEnd == nil {
		return
	}
	r.hooks.OnCommandEnd(ctx, &domain.CommandEvent{
		Timestamp: res.StartedAt.Add(res.Duration),
		RunID:     run.id,
		Command:   run.req.Command,
		Mode:      mode,
		Status:    res.Status(),
		Duration:  res.Duration,
	})
}
