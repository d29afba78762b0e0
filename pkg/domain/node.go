package domain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// NodeID uniquely identifies an emitted node within the process.
// IDs are never reused; the render context keys its artifact index by them.
type NodeID uint64

var nodeSeq atomic.Uint64

func nextNodeID() NodeID {
	return NodeID(nodeSeq.Add(1))
}

// Kind names the shape of an output node.
type Kind string

const (
	KindText     Kind = "text"
	KindMarkdown Kind = "md"
	KindError    Kind = "error"
	KindTable    Kind = "table"
	KindTableRow Kind = "table-row"
	KindRow      Kind = "row"
	KindColumn   Kind = "column"
	KindButton   Kind = "button"
	KindLink     Kind = "link"
	KindInput    Kind = "input"
	KindGroup    Kind = "group"
	KindLive     Kind = "live"
)

// Node is the closed set of values a command can emit. A node describes
// what to display; it carries no backend state. Once attached to a parent
// its position never changes. Only the Table accepts children after it has
// been built (progressive mutation).
type Node interface {
	ID() NodeID
	Kind() Kind

	// isNode restricts implementations to this package.
	isNode()
}

type base struct {
	id NodeID
}

func newBase() base       { return base{id: nextNodeID()} }
func (b base) ID() NodeID { return b.id }
func (base) isNode()      {}

// Leaf is a plain or markdown text node. Error marks the distinguishable
// error block appended when a command faults.
type Leaf struct {
	base
	Text     string
	Markdown bool
	Error    bool
}

func (l *Leaf) Kind() Kind {
	switch {
	case l.Error:
		return KindError
	case l.Markdown:
		return KindMarkdown
	default:
		return KindText
	}
}

// Text creates a plain text leaf.
func Text(s string) *Leaf {
	return &Leaf{base: newBase(), Text: s}
}

// Textf creates a plain text leaf from a format string.
func Textf(format string, args ...any) *Leaf {
	return Text(fmt.Sprintf(format, args...))
}

// Markdown creates a markdown leaf. Stream backends render it through a
// terminal markdown renderer; the surface shows it styled.
func Markdown(s string) *Leaf {
	return &Leaf{base: newBase(), Text: s, Markdown: true}
}

// ErrorText creates the error block leaf used to render a run's fault.
func ErrorText(msg string) *Leaf {
	return &Leaf{base: newBase(), Text: msg, Error: true}
}

// Deferred wraps a unit of work that emits further nodes when invoked.
// The thunk runs once, at build time, inside its own render scope; its
// emissions fold into the position this node occupies. A thunk that emits
// nothing yields an empty, valid container.
type Deferred struct {
	base
	Fn func(context.Context) error
}

func (*Deferred) Kind() Kind { return KindGroup }

// Group creates a deferred node from fn.
func Group(fn func(context.Context) error) *Deferred {
	return &Deferred{base: newBase(), Fn: fn}
}

// Live is a Deferred whose scope stays open after the initial invocation.
// Goroutines started by the thunk may keep emitting through the scope's
// context; each late emission is built and appended to the same container
// via the observer path.
type Live struct {
	base
	Fn func(context.Context) error
}

func (*Live) Kind() Kind { return KindLive }

// LiveGroup creates a live node from fn.
func LiveGroup(fn func(context.Context) error) *Live {
	return &Live{base: newBase(), Fn: fn}
}

// Axis orients a Box.
type Axis int

const (
	Horizontal Axis = iota
	Vertical
)

// Box arranges child nodes along one axis.
type Box struct {
	base
	Axis     Axis
	Children []Node
}

func (b *Box) Kind() Kind {
	if b.Axis == Horizontal {
		return KindRow
	}
	return KindColumn
}

// Row arranges nodes horizontally.
func Row(children ...Node) *Box {
	return &Box{base: newBase(), Axis: Horizontal, Children: children}
}

// Column arranges nodes vertically.
func Column(children ...Node) *Box {
	return &Box{base: newBase(), Axis: Vertical, Children: children}
}

// Button is an interactive element. The surface backend invokes OnPress on
// activation, bound to the surface's render context; the stream backend
// renders it inert.
type Button struct {
	base
	Label   string
	OnPress func(context.Context) error
}

func (*Button) Kind() Kind { return KindButton }

// NewButton creates a button node.
func NewButton(label string, onPress func(context.Context) error) *Button {
	return &Button{base: newBase(), Label: label, OnPress: onPress}
}

// Link is a hyperlink. Stream backends emit an OSC 8 hyperlink where the
// terminal supports it, otherwise the URL in parentheses.
type Link struct {
	base
	Text string
	URL  string
}

func (*Link) Kind() Kind { return KindLink }

// NewLink creates a link node.
func NewLink(text, url string) *Link {
	return &Link{base: newBase(), Text: text, URL: url}
}

// Input is a single-line text entry element. The surface backend invokes
// OnSubmit with the entered value; the stream backend renders a placeholder.
type Input struct {
	base
	Label       string
	Placeholder string
	OnSubmit    func(context.Context, string) error
}

func (*Input) Kind() Kind { return KindInput }

// NewInput creates an input node.
func NewInput(label, placeholder string, onSubmit func(context.Context, string) error) *Input {
	return &Input{base: newBase(), Label: label, Placeholder: placeholder, OnSubmit: onSubmit}
}

// TableRow is the unit appended to a Table after it has been built. Hosts
// normally go through Table.AppendRow rather than creating one directly.
type TableRow struct {
	base
	Cells []string
}

func (*TableRow) Kind() Kind { return KindTableRow }

// NewTableRow creates a table row node from already-stringified cells.
func NewTableRow(cells []string) *TableRow {
	return &TableRow{base: newBase(), Cells: cells}
}

// ProgressiveSink receives post-build appends for a progressive node. It is
// implemented by the render context that built the node.
type ProgressiveSink interface {
	AppendChild(ctx context.Context, parent Node, child Node) error
}

// Table is the progressive node: it remembers the context that built it and
// can push incremental rows into the backend artifact without a re-render.
type Table struct {
	base
	Columns []string

	mu   sync.Mutex
	rows [][]string
	sink ProgressiveSink
}

func (*Table) Kind() Kind { return KindTable }

// NewTable creates a table with the given column headers and initial rows.
func NewTable(columns []string, rows ...[]string) *Table {
	t := &Table{base: newBase(), Columns: columns}
	t.rows = append(t.rows, rows...)
	return t
}

// Rows returns a snapshot of the table's data.
func (t *Table) Rows() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]string, len(t.rows))
	copy(out, t.rows)
	return out
}

// Bind records the sink that built the table. Called by the render context
// on first build; hosts do not call it.
func (t *Table) Bind(sink ProgressiveSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// AppendRow records a new row and pushes it into the retained backend
// artifact. Valid only after the table has been built at least once;
// earlier calls return ErrNotBuilt. Cells are stringified.
func (t *Table) AppendRow(ctx context.Context, cells ...any) error {
	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = fmt.Sprint(c)
	}

	t.mu.Lock()
	sink := t.sink
	if sink == nil {
		t.mu.Unlock()
		return fmt.Errorf("table %d: %w", t.id, ErrNotBuilt)
	}
	t.rows = append(t.rows, row)
	t.mu.Unlock()

	return sink.AppendChild(ctx, t, NewTableRow(row))
}
