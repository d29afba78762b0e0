package surface

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aretw0/arbor/pkg/domain"
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	buttonStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	linkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Underline(true)
	mdStyle     = lipgloss.NewStyle().PaddingLeft(1)
)

// view renders a widget tree to a frame. focused marks the interactive
// element currently holding focus; input supplies the live text entry
// shown in place of the focused Input node.
type view struct {
	focused domain.Node
	input   *textinput.Model
}

func (v *view) renderBlocks(blocks []*widget) string {
	parts := make([]string, 0, len(blocks))
	for _, w := range blocks {
		parts = append(parts, v.renderWidget(w))
	}
	return strings.Join(parts, "\n")
}

func (v *view) renderWidget(w *widget) string {
	own := v.renderNode(w.node, w)
	if len(w.children) == 0 {
		return own
	}
	parts := make([]string, 0, len(w.children)+1)
	if own != "" {
		parts = append(parts, own)
	}
	for _, c := range w.children {
		if r := v.renderWidget(c); r != "" {
			parts = append(parts, r)
		}
	}
	if box, ok := w.node.(*domain.Box); ok && box.Axis == domain.Horizontal {
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}
	return strings.Join(parts, "\n")
}

func (v *view) renderNode(n domain.Node, w *widget) string {
	switch node := n.(type) {
	case *domain.Leaf:
		switch {
		case node.Error:
			return errorStyle.Render("✗ " + node.Text)
		case node.Markdown:
			return mdStyle.Render(node.Text)
		default:
			return node.Text
		}
	case *domain.Table:
		t := table.New().Headers(node.Columns...)
		for _, row := range node.Rows() {
			t.Row(row...)
		}
		return t.Render()
	case *domain.TableRow:
		// Rows reached here arrive as live children of a table widget;
		// the table itself re-renders from node.Rows(), so the child
		// renders empty.
		return ""
	case *domain.Button:
		label := node.Label
		if v.focused == n {
			return buttonStyle.Render(focusedStyle.Render(label))
		}
		return buttonStyle.Render(label)
	case *domain.Link:
		return linkStyle.Render(node.Text) + " " + node.URL
	case *domain.Input:
		if v.focused == n && v.input != nil {
			return node.Label + ": " + v.input.View()
		}
		placeholder := node.Placeholder
		if placeholder == "" {
			placeholder = "____"
		}
		return fmt.Sprintf("%s: %s", node.Label, placeholder)
	case *domain.Box:
		if w != nil && len(w.children) > 0 {
			// Children were built as widgets; renderWidget lays them out.
			return ""
		}
		parts := make([]string, 0, len(node.Children))
		for _, c := range node.Children {
			parts = append(parts, v.renderNode(c, nil))
		}
		if node.Axis == domain.Horizontal {
			return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
		}
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	case *domain.Deferred, *domain.Live:
		// Containers render through their children.
		return ""
	default:
		return fmt.Sprintf("<%s>", n.Kind())
	}
}
