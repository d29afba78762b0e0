package render

import (
	"encoding/json"

	"github.com/aretw0/arbor/pkg/domain"
)

// Tree marshals the scope's emissions, children resolved, into the JSON
// node-tree form served by the HTTP adapter.
func (rc *Context) Tree(s *Scope) (json.RawMessage, error) {
	nodes := s.stack.Snapshot()
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, rc.nodeJSON(n))
	}
	return json.Marshal(out)
}

// NodeJSON marshals a single node, children resolved, in the same form
// Tree uses. The HTTP adapter streams it per emission over SSE.
func (rc *Context) NodeJSON(n domain.Node) (json.RawMessage, error) {
	return json.Marshal(rc.nodeJSON(n))
}

func (rc *Context) nodeJSON(n domain.Node) map[string]any {
	m := map[string]any{"type": string(n.Kind())}
	switch node := n.(type) {
	case *domain.Leaf:
		m["text"] = node.Text
	case *domain.Table:
		m["columns"] = node.Columns
		m["rows"] = node.Rows()
	case *domain.TableRow:
		m["cells"] = node.Cells
	case *domain.Button:
		m["label"] = node.Label
	case *domain.Link:
		m["text"] = node.Text
		m["url"] = node.URL
	case *domain.Input:
		m["label"] = node.Label
		m["placeholder"] = node.Placeholder
	case *domain.Box, *domain.Deferred, *domain.Live:
		children := rc.Children(n)
		arr := make([]any, 0, len(children))
		for _, c := range children {
			arr = append(arr, rc.nodeJSON(c))
		}
		m["children"] = arr
	}
	return m
}
