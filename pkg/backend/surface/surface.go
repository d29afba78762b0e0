// Package surface implements the interactive surface backend on a
// bubbletea event loop. All artifact mutation is marshalled onto the
// surface's dispatcher; mutation attempted while the loop is not running
// surfaces as domain.ErrOffLoop rather than being dropped.
package surface

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// widget is the surface's backend artifact: one node plus the widgets of
// its resolved children. The tree is mutated only on the dispatcher.
type widget struct {
	node     domain.Node
	children []*widget
	visible  atomic.Bool
}

// Activator is invoked when the user activates an interactive element: a
// button press (value empty) or an input submission (value is the
// entered text). The host binds it to a render context so the element's
// callback can emit.
type Activator func(node domain.Node, value string)

// Surface renders output nodes as widgets inside a bubbletea program.
//
// The surface owns a single dispatcher goroutine: every Mount and every
// Append into a visible widget runs there, in FIFO order, so the widget
// tree has exactly one writer. Scheduled command bodies run on a
// separate serialized worker and reach the widget tree through the
// dispatcher like everyone else. The bubbletea program reads frames
// through snapshots.
type Surface struct {
	logger   *slog.Logger
	title    string
	activate Activator

	mu     sync.Mutex
	blocks []*widget

	dispatch chan func()
	queue    chan func()
	running  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}

	program *tea.Program
}

// Option configures the Surface backend.
type Option func(*Surface)

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Surface) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTitle sets the title line shown above the rendered output.
func WithTitle(title string) Option {
	return func(s *Surface) {
		s.title = title
	}
}

// WithActivator registers the callback for interactive elements.
func WithActivator(fn Activator) Option {
	return func(s *Surface) {
		s.activate = fn
	}
}

// New creates a surface backend. The loop is not running until Run or
// StartLoop is called; mounting earlier fails with ErrOffLoop.
func New(opts ...Option) *Surface {
	s := &Surface{
		logger:   logging.NewNop(),
		dispatch: make(chan func(), 64),
		queue:    make(chan func(), 64),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the backend in logs and render events.
func (s *Surface) Name() string { return "surface" }

// StartLoop starts the dispatcher and the command queue worker without
// the interactive program. Embedding hosts and tests use it to drive the
// surface headless; Run calls it internally.
func (s *Surface) StartLoop() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		for {
			select {
			case fn := <-s.dispatch:
				fn()
			case <-s.stopped:
				return
			}
		}
	}()
	go func() {
		for {
			select {
			case fn := <-s.queue:
				fn()
			case <-s.stopped:
				return
			}
		}
	}()
}

// Stop halts the dispatcher. Later mutations fail with ErrOffLoop.
func (s *Surface) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.stopped)
	})
}

// Run starts the dispatcher and the interactive program and blocks until
// the user quits or ctx is cancelled.
func (s *Surface) Run(ctx context.Context) error {
	s.StartLoop()
	defer s.Stop()

	m := newModel(s)
	s.program = tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := s.program.Run()
	s.program = nil
	return err
}

// post marshals fn onto the dispatcher and waits for it. It is the only
// path that mutates visible widgets.
func (s *Surface) post(fn func() error) error {
	if !s.running.Load() {
		return fmt.Errorf("surface loop not running: %w", domain.ErrOffLoop)
	}
	done := make(chan error, 1)
	select {
	case s.dispatch <- func() { done <- fn() }:
	case <-s.stopped:
		return fmt.Errorf("surface loop stopped: %w", domain.ErrOffLoop)
	}
	select {
	case err := <-done:
		return err
	case <-s.stopped:
		return fmt.Errorf("surface loop stopped: %w", domain.ErrOffLoop)
	}
}

// Schedule puts fn on the surface's command queue. Queued work runs one
// at a time in submission order, on a worker separate from the
// dispatcher: a command body mounts and appends through post, so running
// it on the dispatcher itself would have it wait on the goroutine it is
// occupying. If the loop is not running the work runs inline; a queued
// command must not be lost because the host chose a headless setup.
func (s *Surface) Schedule(fn func()) {
	if !s.running.Load() {
		s.logger.Debug("scheduling inline, surface loop not running")
		fn()
		return
	}
	select {
	case s.queue <- fn:
	case <-s.stopped:
		fn()
	}
}

// Build creates a widget for a leaf or structured node. Construction is
// pure; nothing is visible until Mount.
func (s *Surface) Build(ctx context.Context, node domain.Node) (ports.Artifact, error) {
	return &widget{node: node}, nil
}

// Container creates an empty widget for a deferred or live scope.
func (s *Surface) Container(ctx context.Context, node domain.Node) (ports.Artifact, error) {
	return &widget{node: node}, nil
}

// Append attaches child under parent. Before the parent is visible the
// building flow owns it exclusively and attaches directly; once visible,
// the mutation is marshalled onto the dispatcher and a repaint is
// requested.
func (s *Surface) Append(ctx context.Context, parent, child ports.Artifact) error {
	pw, ok := parent.(*widget)
	if !ok {
		return fmt.Errorf("surface: parent artifact is %T, not a widget", parent)
	}
	cw, ok := child.(*widget)
	if !ok {
		return fmt.Errorf("surface: child artifact is %T, not a widget", child)
	}

	if !pw.visible.Load() {
		pw.children = append(pw.children, cw)
		return nil
	}
	return s.post(func() error {
		pw.children = append(pw.children, cw)
		s.markVisible(cw)
		s.repaint()
		return nil
	})
}

// Mount places a top-level widget on the surface.
func (s *Surface) Mount(ctx context.Context, a ports.Artifact) error {
	w, ok := a.(*widget)
	if !ok {
		return fmt.Errorf("surface: artifact is %T, not a widget", a)
	}
	return s.post(func() error {
		s.mu.Lock()
		s.blocks = append(s.blocks, w)
		s.mu.Unlock()
		s.markVisible(w)
		s.repaint()
		return nil
	})
}

func (s *Surface) markVisible(w *widget) {
	w.visible.Store(true)
	for _, c := range w.children {
		s.markVisible(c)
	}
}

func (s *Surface) repaint() {
	if s.program != nil {
		s.program.Send(refreshMsg{})
	}
}

// snapshot returns the current top-level widgets. The slice is copied;
// the widgets themselves are only mutated on the dispatcher.
func (s *Surface) snapshot() []*widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*widget, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// Content renders the current widget tree to plain text. Tests and
// embedding hosts use it; the interactive program renders through the
// model instead.
func (s *Surface) Content() string {
	var v view
	return v.renderBlocks(s.snapshot())
}

func (s *Surface) fireActivate(node domain.Node, value string) {
	if s.activate == nil {
		s.logger.Debug("interactive element activated with no activator", "node", node.ID())
		return
	}
	// Off the loop: activation runs a command body, which may block.
	go s.activate(node, value)
}
