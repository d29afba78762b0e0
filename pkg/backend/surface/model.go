package surface

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aretw0/arbor/pkg/domain"
)

// refreshMsg requests a repaint after the dispatcher mutated the tree.
type refreshMsg struct{}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
)

// model is the bubbletea side of the surface: a viewport over the
// rendered widget tree plus focus handling for interactive elements.
type model struct {
	surface *Surface
	vp      viewport.Model
	input   textinput.Model
	ready   bool

	focusables []domain.Node
	focus      int
}

func newModel(s *Surface) *model {
	ti := textinput.New()
	ti.CharLimit = 256
	return &model{surface: s, input: ti, focus: -1}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-2)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - 2
		}
		m.refresh()
		return m, nil

	case refreshMsg:
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.focusedInput() == nil || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
		case "tab":
			m.cycleFocus()
			m.refresh()
			return m, nil
		case "enter":
			if node, ok := m.focused(); ok {
				m.activate(node)
				m.refresh()
				return m, nil
			}
		}
		if in := m.focusedInput(); in != nil {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			m.refresh()
			return m, cmd
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) View() string {
	if !m.ready {
		return "loading..."
	}
	title := titleStyle.Render(m.surface.title)
	footer := footerStyle.Render("tab: focus · enter: activate · q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, title, m.vp.View(), footer)
}

// refresh re-renders the widget tree into the viewport and recollects
// the interactive elements.
func (m *model) refresh() {
	blocks := m.surface.snapshot()

	m.focusables = m.focusables[:0]
	for _, w := range blocks {
		collectFocusables(w, &m.focusables)
	}
	if m.focus >= len(m.focusables) {
		m.focus = len(m.focusables) - 1
	}

	v := view{
		focused: m.currentFocus(),
		input:   &m.input,
	}
	m.vp.SetContent(v.renderBlocks(blocks))
}

func collectFocusables(w *widget, out *[]domain.Node) {
	switch w.node.(type) {
	case *domain.Button, *domain.Input:
		*out = append(*out, w.node)
	}
	for _, c := range w.children {
		collectFocusables(c, out)
	}
}

func (m *model) cycleFocus() {
	if len(m.focusables) == 0 {
		m.focus = -1
		return
	}
	m.focus = (m.focus + 1) % len(m.focusables)
	if in, ok := m.focusables[m.focus].(*domain.Input); ok {
		m.input.SetValue("")
		m.input.Placeholder = in.Placeholder
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *model) focused() (domain.Node, bool) {
	if m.focus < 0 || m.focus >= len(m.focusables) {
		return nil, false
	}
	return m.focusables[m.focus], true
}

func (m *model) currentFocus() domain.Node {
	n, _ := m.focused()
	return n
}

func (m *model) focusedInput() *domain.Input {
	if n, ok := m.focused(); ok {
		if in, ok := n.(*domain.Input); ok {
			return in
		}
	}
	return nil
}

func (m *model) activate(node domain.Node) {
	switch node.(type) {
	case *domain.Input:
		m.surface.fireActivate(node, m.input.Value())
		m.input.SetValue("")
	default:
		m.surface.fireActivate(node, "")
	}
}
