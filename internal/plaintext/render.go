// Package plaintext renders output nodes into the plain text transcript
// carried by a run result. It is backend-independent: the same transcript
// is produced whether the run rendered to the surface or the stream.
package plaintext

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// ChildrenFunc resolves the child nodes of a container. The render context
// provides it so captured Deferred/Live emissions are included.
type ChildrenFunc func(domain.Node) []domain.Node

// Transcript renders each node to one transcript element, in order.
// Container nodes flatten: their children become separate elements, at the
// position the container occupied, preserving overall document order.
func Transcript(nodes []domain.Node, children ChildrenFunc) []string {
	var out []string
	for _, n := range nodes {
		out = appendNode(out, n, children)
	}
	return out
}

func appendNode(out []string, n domain.Node, children ChildrenFunc) []string {
	switch node := n.(type) {
	case *domain.Deferred, *domain.Live:
		for _, c := range children(n) {
			out = appendNode(out, c, children)
		}
		return out
	default:
		return append(out, Render(node, children))
	}
}

// Render produces the plain text form of a single node. Interactive
// elements render as inert markers; tables render one line per row.
func Render(n domain.Node, children ChildrenFunc) string {
	switch node := n.(type) {
	case *domain.Leaf:
		if node.Error {
			return "ERROR: " + node.Text
		}
		return node.Text
	case *domain.Table:
		var b strings.Builder
		b.WriteString(strings.Join(node.Columns, " | "))
		for _, row := range node.Rows() {
			b.WriteString("\n")
			b.WriteString(strings.Join(row, " | "))
		}
		return b.String()
	case *domain.TableRow:
		return strings.Join(node.Cells, " | ")
	case *domain.Button:
		return "[" + node.Label + "]"
	case *domain.Link:
		return fmt.Sprintf("%s (%s)", node.Text, node.URL)
	case *domain.Input:
		return node.Label + ": ____"
	case *domain.Box:
		parts := make([]string, 0, len(node.Children))
		for _, c := range node.Children {
			parts = append(parts, Render(c, children))
		}
		if node.Axis == domain.Horizontal {
			return strings.Join(parts, "  ")
		}
		return strings.Join(parts, "\n")
	case *domain.Deferred, *domain.Live:
		var parts []string
		for _, c := range children(n) {
			parts = append(parts, Render(c, children))
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprintf("<%s>", n.Kind())
	}
}
