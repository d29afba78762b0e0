package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// fakeArtifact records structure so tests can assert document order.
type fakeArtifact struct {
	node     domain.Node
	children []*fakeArtifact
}

// fakeBackend is an in-memory ports.Backend counting builds and appends.
type fakeBackend struct {
	mu      sync.Mutex
	mounted []*fakeArtifact
	builds  int
	appends int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Build(_ context.Context, node domain.Node) (ports.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	return &fakeArtifact{node: node}, nil
}

func (f *fakeBackend) Container(_ context.Context, node domain.Node) (ports.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &fakeArtifact{node: node}, nil
}

func (f *fakeBackend) Append(_ context.Context, parent, child ports.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	p := parent.(*fakeArtifact)
	p.children = append(p.children, child.(*fakeArtifact))
	return nil
}

func (f *fakeBackend) Mount(_ context.Context, a ports.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted = append(f.mounted, a.(*fakeArtifact))
	return nil
}

// flatten returns the leaf texts of the mounted artifacts in document
// order.
func (f *fakeBackend) flatten() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	var walk func(a *fakeArtifact)
	walk = func(a *fakeArtifact) {
		if leaf, ok := a.node.(*domain.Leaf); ok && len(a.children) == 0 {
			out = append(out, leaf.Text)
		}
		for _, c := range a.children {
			walk(c)
		}
	}
	for _, a := range f.mounted {
		walk(a)
	}
	return out
}

func TestEmitWithoutBindingIsNoScope(t *testing.T) {
	err := Emit(context.Background(), "orphan")
	assert.ErrorIs(t, err, domain.ErrNoScope)
}

func TestEmitFIFOAcrossNesting(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	require.NoError(t, Emit(ctx, "Step 1"))
	require.NoError(t, Emit(ctx, domain.Group(func(ctx context.Context) error {
		if err := Emit(ctx, "a"); err != nil {
			return err
		}
		return Emit(ctx, "b")
	})))
	require.NoError(t, Emit(ctx, "Step 3"))

	require.NoError(t, rc.BuildScope(ctx, scope))
	closeScope()

	assert.Equal(t, []string{"Step 1", "a", "b", "Step 3"}, be.flatten())
}

func TestLeafRoundTrip(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, "exactly this text"))
	require.NoError(t, rc.BuildScope(ctx, scope))

	got := be.flatten()
	require.Len(t, got, 1)
	assert.Equal(t, "exactly this text", got[0])
}

func TestCoerceCases(t *testing.T) {
	leaf := domain.Text("already a node")
	assert.Same(t, domain.Node(leaf), Coerce(leaf))

	n := Coerce("plain")
	require.IsType(t, &domain.Leaf{}, n)
	assert.Equal(t, "plain", n.(*domain.Leaf).Text)

	fn := func(context.Context) error { return nil }
	assert.IsType(t, &domain.Deferred{}, Coerce(fn))

	e := Coerce(errors.New("bad"))
	require.IsType(t, &domain.Leaf{}, e)
	assert.True(t, e.(*domain.Leaf).Error)

	other := Coerce(42)
	require.IsType(t, &domain.Leaf{}, other)
	assert.Equal(t, "42", other.(*domain.Leaf).Text)
}

func TestBuildIsIdempotentPerNode(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, "once"))

	require.NoError(t, rc.BuildScope(ctx, scope))
	require.NoError(t, rc.BuildScope(ctx, scope))

	assert.Equal(t, 1, be.builds, "second walk must reuse the cached artifact")
	assert.Equal(t, []string{"once"}, be.flatten(), "no duplicate mounts")
}

func TestDeferredSingleChildUnwraps(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, domain.Group(func(ctx context.Context) error {
		return Emit(ctx, "only child")
	})))
	require.NoError(t, rc.BuildScope(ctx, scope))

	require.Len(t, be.mounted, 1)
	leaf, ok := be.mounted[0].node.(*domain.Leaf)
	require.True(t, ok, "single child must mount directly, not wrapped")
	assert.Equal(t, "only child", leaf.Text)
}

func TestDeferredEmptyThunkYieldsBlankContainer(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, domain.Group(func(context.Context) error { return nil })))

	require.NoError(t, rc.BuildScope(ctx, scope), "an empty thunk is not an error")
	require.Len(t, be.mounted, 1)
	assert.Empty(t, be.mounted[0].children)
}

func TestDeferredFaultPropagatesAsResolutionError(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	boom := errors.New("boom")
	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, "before"))
	require.NoError(t, Emit(ctx, domain.Group(func(context.Context) error { return boom })))

	err := rc.BuildScope(ctx, scope)
	var resErr *domain.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.ErrorIs(t, err, boom)

	// Everything built before the fault stays.
	assert.Equal(t, []string{"before"}, be.flatten())
}

func TestLiveDeferredThreeBeforeTwoAfter(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	var liveCtx context.Context
	live := domain.LiveGroup(func(ctx context.Context) error {
		liveCtx = ctx
		for _, s := range []string{"one", "two", "three"} {
			if err := Emit(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, live))
	require.NoError(t, rc.BuildScope(ctx, scope))

	appendsAfterWalk := be.appends

	// Simulate the still-running background worker emitting through the
	// live scope's context after the initial walk.
	require.NoError(t, Emit(liveCtx, "four"))
	require.NoError(t, Emit(liveCtx, "five"))

	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, be.flatten())
	assert.Equal(t, appendsAfterWalk+2, be.appends,
		"the last two must arrive via the observer path")
}

// stallingBackend blocks its first Append until released, so a test can
// hold the initial walk of a live container mid-flight while another
// goroutine emits.
type stallingBackend struct {
	fakeBackend
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *stallingBackend) Append(ctx context.Context, parent, child ports.Artifact) error {
	if b.calls.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return b.fakeBackend.Append(ctx, parent, child)
}

func TestLiveAppendWaitsForInitialWalk(t *testing.T) {
	be := &stallingBackend{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	rc := New(be)

	ctxCh := make(chan context.Context, 1)
	live := domain.LiveGroup(func(ctx context.Context) error {
		ctxCh <- ctx
		if err := Emit(ctx, "one"); err != nil {
			return err
		}
		return Emit(ctx, "two")
	})

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, live))

	walkDone := make(chan error, 1)
	go func() { walkDone <- rc.BuildScope(ctx, scope) }()

	// The walk is stalled inside the first child's append; an emission
	// arriving now must still land after both initial children.
	liveCtx := <-ctxCh
	<-be.entered
	require.NoError(t, Emit(liveCtx, "three"))
	close(be.release)

	require.NoError(t, <-walkDone)
	assert.Equal(t, []string{"one", "two", "three"}, be.flatten())
}

func TestLiveScopeDetachStopsBuilding(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	var liveCtx context.Context
	live := domain.LiveGroup(func(ctx context.Context) error {
		liveCtx = ctx
		return Emit(ctx, "kept")
	})

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, live))
	require.NoError(t, rc.BuildScope(ctx, scope))

	liveScope, ok := rc.ScopeOf(live)
	require.True(t, ok)
	liveScope.Detach()

	assert.ErrorIs(t, Emit(liveCtx, "dropped"), domain.ErrDetached)

	assert.Equal(t, []string{"kept"}, be.flatten())
	// Still recorded for the transcript, just never built.
	assert.Equal(t, 2, liveScope.Stack().Len())
}

func TestEmitAfterCloseIsSilentDrop(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	require.NoError(t, Emit(ctx, "during"))
	require.NoError(t, rc.BuildScope(ctx, scope))
	closeScope()

	// A run that finished normally is not an error for a straggler;
	// only an explicit Detach is reported.
	require.NoError(t, Emit(ctx, "after"))
	assert.Equal(t, []string{"during"}, be.flatten())
}

func TestImmediatePathWithoutScope(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	ctx := WithContext(context.Background(), rc)
	require.NoError(t, Emit(ctx, "direct"))

	assert.Equal(t, []string{"direct"}, be.flatten())
}

func TestAppendChildRequiresBuild(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	tbl := domain.NewTable([]string{"a"})
	err := rc.AppendChild(context.Background(), tbl, domain.NewTableRow([]string{"1"}))
	assert.ErrorIs(t, err, domain.ErrNotBuilt)
}

func TestTableProgressiveAppendThroughContext(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	tbl := domain.NewTable([]string{"name", "qty"}, []string{"pears", "1"})

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, tbl))
	require.NoError(t, rc.BuildScope(ctx, scope))

	require.NoError(t, tbl.AppendRow(ctx, "apples", 3))

	require.Len(t, be.mounted, 1)
	require.Len(t, be.mounted[0].children, 1, "the new row lands in the retained artifact")
	row := be.mounted[0].children[0].node.(*domain.TableRow)
	assert.Equal(t, []string{"apples", "3"}, row.Cells)
	assert.Equal(t, [][]string{{"pears", "1"}, {"apples", "3"}}, tbl.Rows())
}

func TestTreeJSON(t *testing.T) {
	be := &fakeBackend{}
	rc := New(be)

	ctx, scope, closeScope := rc.OpenRoot(context.Background())
	defer closeScope()
	require.NoError(t, Emit(ctx, "hello"))
	require.NoError(t, Emit(ctx, domain.NewTable([]string{"a"}, []string{"1"})))

	raw, err := rc.Tree(scope)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"type":"text","text":"hello"},{"type":"table","columns":["a"],"rows":[["1"]]}]`,
		string(raw))
}
