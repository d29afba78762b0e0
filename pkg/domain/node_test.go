package domain

import (
	"context"
	"errors"
	"testing"
)

func TestNodeIDsAreUnique(t *testing.T) {
	seen := make(map[NodeID]bool)
	nodes := []Node{
		Text("a"),
		Markdown("# b"),
		NewTable([]string{"x"}),
		Group(func(context.Context) error { return nil }),
		LiveGroup(func(context.Context) error { return nil }),
		Row(Text("l"), Text("r")),
		NewButton("ok", nil),
		NewLink("docs", "https://example.com"),
		NewInput("name", "", nil),
	}
	for _, n := range nodes {
		if n.ID() == 0 {
			t.Fatalf("node %T has zero ID", n)
		}
		if seen[n.ID()] {
			t.Fatalf("duplicate node ID %d for %T", n.ID(), n)
		}
		seen[n.ID()] = true
	}
}

func TestNodeKinds(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want Kind
	}{
		{"plain text", Text("hi"), KindText},
		{"markdown", Markdown("# hi"), KindMarkdown},
		{"table", NewTable([]string{"a"}), KindTable},
		{"group", Group(nil), KindGroup},
		{"live", LiveGroup(nil), KindLive},
		{"row", Row(), KindRow},
		{"column", Column(), KindColumn},
		{"button", NewButton("go", nil), KindButton},
		{"link", NewLink("t", "u"), KindLink},
		{"input", NewInput("l", "p", nil), KindInput},
		{"table row", NewTableRow([]string{"c"}), KindTableRow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

type sinkFunc func(ctx context.Context, parent Node, child Node) error

func (f sinkFunc) AppendChild(ctx context.Context, parent Node, child Node) error {
	return f(ctx, parent, child)
}

func TestTableAppendRowBeforeBuild(t *testing.T) {
	tbl := NewTable([]string{"name", "qty"})
	err := tbl.AppendRow(context.Background(), "apples", 3)
	if !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("AppendRow before build: got %v, want ErrNotBuilt", err)
	}
	if len(tbl.Rows()) != 0 {
		t.Fatalf("failed append must not record the row, got %v", tbl.Rows())
	}
}

func TestTableAppendRowAfterBind(t *testing.T) {
	tbl := NewTable([]string{"name", "qty"}, []string{"pears", "1"})

	var gotParent Node
	var gotChild Node
	tbl.Bind(sinkFunc(func(_ context.Context, parent, child Node) error {
		gotParent, gotChild = parent, child
		return nil
	}))

	if err := tbl.AppendRow(context.Background(), "apples", 3); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	if gotParent != tbl {
		t.Errorf("sink parent = %v, want the table itself", gotParent)
	}
	row, ok := gotChild.(*TableRow)
	if !ok {
		t.Fatalf("sink child = %T, want *TableRow", gotChild)
	}
	if len(row.Cells) != 2 || row.Cells[0] != "apples" || row.Cells[1] != "3" {
		t.Errorf("cells = %v, want [apples 3]", row.Cells)
	}

	rows := tbl.Rows()
	if len(rows) != 2 {
		t.Fatalf("Rows() = %d rows, want 2", len(rows))
	}
}

func TestTableRowsSnapshot(t *testing.T) {
	tbl := NewTable([]string{"a"}, []string{"1"})
	rows := append(tbl.Rows(), []string{"2"})
	if len(rows) != 2 {
		t.Fatalf("appended snapshot length = %d, want 2", len(rows))
	}
	if got := len(tbl.Rows()); got != 1 {
		t.Fatalf("Rows() length = %d after snapshot append, want 1", got)
	}
}
