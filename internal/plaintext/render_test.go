package plaintext

import (
	"errors"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func noChildren(domain.Node) []domain.Node { return nil }

func TestRenderLeaves(t *testing.T) {
	assert.Equal(t, "hello", Render(domain.Text("hello"), noChildren))
	assert.Equal(t, "# title", Render(domain.Markdown("# title"), noChildren))
	assert.Equal(t, "ERROR: boom", Render(domain.ErrorText(errors.New("boom").Error()), noChildren))
}

func TestRenderStructured(t *testing.T) {
	tbl := domain.NewTable([]string{"name", "qty"}, []string{"apples", "3"})
	assert.Equal(t, "name | qty\napples | 3", Render(tbl, noChildren))

	assert.Equal(t, "[Go]", Render(domain.NewButton("Go", nil), noChildren))
	assert.Equal(t, "docs (https://example.com)", Render(domain.NewLink("docs", "https://example.com"), noChildren))
	assert.Equal(t, "name: ____", Render(domain.NewInput("name", "", nil), noChildren))

	row := domain.Row(domain.Text("l"), domain.Text("r"))
	assert.Equal(t, "l  r", Render(row, noChildren))
	col := domain.Column(domain.Text("top"), domain.Text("bottom"))
	assert.Equal(t, "top\nbottom", Render(col, noChildren))
}

func TestTranscriptFlattensContainers(t *testing.T) {
	group := domain.Group(nil)
	inner := []domain.Node{domain.Text("a"), domain.Text("b")}
	children := func(n domain.Node) []domain.Node {
		if n == domain.Node(group) {
			return inner
		}
		return nil
	}

	nodes := []domain.Node{domain.Text("Step 1"), group, domain.Text("Step 3")}
	got := Transcript(nodes, children)
	assert.Equal(t, []string{"Step 1", "a", "b", "Step 3"}, got)
}
