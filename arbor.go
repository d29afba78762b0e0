package arbor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/backend/stream"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/manifest"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/runner"
	"github.com/aretw0/arbor/pkg/session"
)

// App is the high-level entry point for the arbor library: a named
// command registry wired to one backend through a render context and a
// runner. Hosts register commands, then execute them directly or hand
// the App to an adapter (CLI, HTTP, MCP) that drives it.
type App struct {
	name        string
	title       string
	description string

	backend  ports.Backend
	store    ports.RunStore
	sessions *session.Manager
	hooks    domain.Hooks
	man      *manifest.Manifest
	logger   *slog.Logger

	rc     *render.Context
	runner *runner.Runner

	mu       sync.Mutex
	commands map[string]domain.Command
	order    []string
}

// Option defines a functional option for configuring the App.
type Option func(*App)

// WithBackend sets the output backend. The default is a stream backend
// writing to stdout.
func WithBackend(b ports.Backend) Option {
	return func(a *App) {
		a.backend = b
	}
}

// WithLogger sets a custom structured logger for the app and everything
// it constructs. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithStore enables run record persistence.
func WithStore(store ports.RunStore) Option {
	return func(a *App) {
		a.store = store
	}
}

// WithSessions enables per-session run serialization.
func WithSessions(m *session.Manager) Option {
	return func(a *App) {
		a.sessions = m
	}
}

// WithHooks registers observability hooks on both the runner and the
// render context.
func WithHooks(hooks domain.Hooks) Option {
	return func(a *App) {
		a.hooks = a.hooks.Join(hooks)
	}
}

// WithManifest decorates registered commands with an arbor.yaml
// manifest: title, description and per-command hints.
func WithManifest(m *manifest.Manifest) Option {
	return func(a *App) {
		a.man = m
	}
}

// WithTitle sets the human-readable application title shown by surfaces
// and adapters. The manifest title, when present, takes precedence.
func WithTitle(title string) Option {
	return func(a *App) {
		a.title = title
	}
}

// WithDescription sets the application description.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// New initializes an App. name identifies the application to adapters
// and defaults the title.
func New(name string, opts ...Option) *App {
	a := &App{
		name:     name,
		title:    name,
		logger:   logging.NewNop(),
		commands: make(map[string]domain.Command),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.man != nil {
		if a.man.Title != "" {
			a.title = a.man.Title
		}
		if a.man.Description != "" {
			a.description = a.man.Description
		}
	}
	if a.backend == nil {
		a.backend = stream.New(stream.WithLogger(a.logger))
	}

	a.rc = render.New(a.backend,
		render.WithLogger(a.logger),
		render.WithHooks(a.hooks),
	)

	runnerOpts := []runner.Option{runner.WithLogger(a.logger), runner.WithHooks(a.hooks)}
	if a.store != nil {
		runnerOpts = append(runnerOpts, runner.WithStore(a.store))
	}
	if a.sessions != nil {
		runnerOpts = append(runnerOpts, runner.WithSessions(a.sessions))
	}
	a.runner = runner.New(a, a.rc, runnerOpts...)

	return a
}

// Name returns the application name given to New.
func (a *App) Name() string { return a.name }

// Title returns the human-readable title.
func (a *App) Title() string { return a.title }

// Description returns the application description.
func (a *App) Description() string { return a.description }

// Register adds a command to the registry. Manifest decoration is
// applied at registration time. Registering the same name twice returns
// ErrDuplicateCommand.
func (a *App) Register(cmd domain.Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("register: command name is empty")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("register %q: handler is nil", cmd.Name)
	}
	if a.man != nil {
		cmd = a.man.Apply(cmd)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.commands[cmd.Name]; exists {
		return fmt.Errorf("%q: %w", cmd.Name, domain.ErrDuplicateCommand)
	}
	a.commands[cmd.Name] = cmd
	a.order = append(a.order, cmd.Name)
	a.logger.Debug("command registered", "command", cmd.Name)
	return nil
}

// MustRegister is Register that panics on error, for static wiring in a
// host's main.
func (a *App) MustRegister(cmd domain.Command) {
	if err := a.Register(cmd); err != nil {
		panic(err)
	}
}

// HandleFunc registers a bare command with no declared parameters.
func (a *App) HandleFunc(name string, handler domain.Handler) error {
	return a.Register(domain.Command{Name: name, Handler: handler})
}

// Resolve returns the named command, hidden or not. It makes App the
// runner's command resolver.
func (a *App) Resolve(name string) (domain.Command, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cmd, ok := a.commands[name]
	return cmd, ok
}

// Commands returns the visible commands in registration order. Hidden
// commands stay resolvable but are excluded from listings.
func (a *App) Commands() []domain.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Command, 0, len(a.order))
	for _, name := range a.order {
		cmd := a.commands[name]
		if cmd.Hints.Hidden {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

// Execute runs a command to completion and returns its result.
func (a *App) Execute(ctx context.Context, name string, args domain.Args) (domain.Result, error) {
	return a.runner.Execute(ctx, domain.Request{Command: name, Args: args})
}

// Submit starts a run honoring req.Mode and returns without waiting
// (unless the mode is immediate).
func (a *App) Submit(ctx context.Context, req domain.Request) (*runner.Run, error) {
	return a.runner.Submit(ctx, req)
}

// Include runs another command inline in the current scope. See
// runner.Runner.Include.
func (a *App) Include(ctx context.Context, name string, args domain.Args) (any, error) {
	return a.runner.Include(ctx, name, args)
}

// Runner returns the underlying command runner, for adapters that need
// run handles.
func (a *App) Runner() *runner.Runner { return a.runner }

// RenderContext returns the app's render context.
func (a *App) RenderContext() *render.Context { return a.rc }

// Backend returns the output backend.
func (a *App) Backend() ports.Backend { return a.backend }

// Store returns the run record store, or nil when persistence is off.
func (a *App) Store() ports.RunStore { return a.store }
