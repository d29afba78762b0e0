// Package stream implements the terminal stream backend: nodes render to
// styled text fragments written to an append-only writer. There is no
// event loop; any goroutine may mount or append, serialized by the
// backend's own lock.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

const defaultWidth = 80

// fragment is the stream's backend artifact: the rendered text of one
// node, plus whether it has already been written out. Appends into an
// already-written fragment are written immediately; the stream is
// append-only, so "updating a container" means printing the new part.
type fragment struct {
	node    domain.Node
	text    string
	sep     string // separator between folded children, "\n" by default
	written bool
}

// Stream renders output nodes as styled terminal text.
type Stream struct {
	mu      sync.Mutex
	w       io.Writer
	width   int
	isTTY   bool
	profile termenv.Profile
	md      *glamour.TermRenderer
	logger  *slog.Logger

	errStyle    lipgloss.Style
	buttonStyle lipgloss.Style
	inputStyle  lipgloss.Style

	queue     chan func()
	queueOnce sync.Once
}

// Option configures the Stream backend.
type Option func(*Stream)

// WithWriter sets the output writer (default os.Stdout).
func WithWriter(w io.Writer) Option {
	return func(s *Stream) {
		s.w = w
	}
}

// WithWidth forces the render width instead of probing the terminal.
func WithWidth(width int) Option {
	return func(s *Stream) {
		s.width = width
	}
}

// WithColorProfile overrides the detected termenv profile. Tests use
// termenv.Ascii for stable output.
func WithColorProfile(p termenv.Profile) Option {
	return func(s *Stream) {
		s.profile = p
	}
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a stream backend. Width and color support are probed from
// the writer when it is a terminal.
func New(opts ...Option) *Stream {
	s := &Stream{
		w:       os.Stdout,
		profile: termenv.Ascii,
		logger:  logging.NewNop(),
		queue:   make(chan func(), 64),
	}

	if f, ok := s.w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.isTTY = true
		s.profile = termenv.ColorProfile()
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			s.width = w
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.width <= 0 {
		s.width = defaultWidth
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(s.width),
	)
	if err != nil {
		s.logger.Warn("markdown renderer unavailable, falling back to raw text", "err", err)
	}
	s.md = md

	renderer := lipgloss.NewRenderer(s.w)
	renderer.SetColorProfile(s.profile)
	s.errStyle = renderer.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	s.buttonStyle = renderer.NewStyle().Foreground(lipgloss.Color("12"))
	s.inputStyle = renderer.NewStyle().Faint(true)

	return s
}

// Name identifies the backend in logs and render events.
func (s *Stream) Name() string { return "stream" }

// Schedule enqueues fn onto the stream's serial queue. The queue worker
// starts on first use and drains in FIFO order, so queued-mode commands
// never interleave.
func (s *Stream) Schedule(fn func()) {
	s.queueOnce.Do(func() {
		go func() {
			for f := range s.queue {
				f()
			}
		}()
	})
	s.queue <- fn
}

// Build renders a leaf or structured node into a text fragment.
func (s *Stream) Build(ctx context.Context, node domain.Node) (ports.Artifact, error) {
	return &fragment{node: node, text: s.render(node)}, nil
}

// Container creates an empty fragment for a deferred or live scope, or
// for a box whose children fold in later.
func (s *Stream) Container(ctx context.Context, node domain.Node) (ports.Artifact, error) {
	sep := "\n"
	if box, ok := node.(*domain.Box); ok && box.Axis == domain.Horizontal {
		sep = "  "
	}
	return &fragment{node: node, sep: sep}, nil
}

// Append attaches child below parent. If the parent fragment has already
// been written, the child is written immediately; otherwise its text is
// folded into the parent for the eventual mount.
func (s *Stream) Append(ctx context.Context, parent, child ports.Artifact) error {
	pf, ok := parent.(*fragment)
	if !ok {
		return fmt.Errorf("stream: parent artifact is %T, not a fragment", parent)
	}
	cf, ok := child.(*fragment)
	if !ok {
		return fmt.Errorf("stream: child artifact is %T, not a fragment", child)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pf.written {
		return s.write(cf)
	}
	if pf.text != "" {
		sep := pf.sep
		if sep == "" {
			sep = "\n"
		}
		pf.text += sep
	}
	pf.text += cf.text
	cf.written = true
	return nil
}

// Mount writes a top-level fragment to the output.
func (s *Stream) Mount(ctx context.Context, a ports.Artifact) error {
	f, ok := a.(*fragment)
	if !ok {
		return fmt.Errorf("stream: artifact is %T, not a fragment", a)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(f)
}

func (s *Stream) write(f *fragment) error {
	if f.written {
		return nil
	}
	f.written = true
	if f.text == "" {
		// An empty container is valid, just blank.
		return nil
	}
	_, err := fmt.Fprintln(s.w, f.text)
	return err
}

// render dispatches on the node kind. Deferred and Live nodes never
// arrive here; the render context resolves them into containers.
func (s *Stream) render(n domain.Node) string {
	switch node := n.(type) {
	case *domain.Leaf:
		switch {
		case node.Error:
			return s.errStyle.Render("✗ " + node.Text)
		case node.Markdown:
			return s.renderMarkdown(node.Text)
		default:
			return node.Text
		}
	case *domain.Table:
		return s.renderTable(node)
	case *domain.TableRow:
		return "  " + strings.Join(node.Cells, "  ")
	case *domain.Button:
		return s.buttonStyle.Render("[ " + node.Label + " ]")
	case *domain.Link:
		if s.isTTY {
			return termenv.Hyperlink(node.URL, node.Text)
		}
		return fmt.Sprintf("%s (%s)", node.Text, node.URL)
	case *domain.Input:
		label := node.Label
		if node.Placeholder != "" {
			label += " " + s.inputStyle.Render("("+node.Placeholder+")")
		}
		return label + ": ____"
	case *domain.Box:
		parts := make([]string, 0, len(node.Children))
		for _, c := range node.Children {
			parts = append(parts, s.render(c))
		}
		if node.Axis == domain.Horizontal {
			return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(parts, "  "))
		}
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	default:
		return fmt.Sprintf("<%s>", n.Kind())
	}
}

func (s *Stream) renderMarkdown(text string) string {
	if s.md == nil {
		return text
	}
	out, err := s.md.Render(text)
	if err != nil {
		s.logger.Debug("markdown render failed", "err", err)
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (s *Stream) renderTable(node *domain.Table) string {
	t := table.New().
		Headers(node.Columns...).
		Width(min(s.width, defaultWidth))
	for _, row := range node.Rows() {
		t.Row(row...)
	}
	return t.Render()
}
