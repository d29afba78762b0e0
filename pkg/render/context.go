package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Context coordinates rendering for one backend: it resolves emitted
// values into output nodes, turns nodes into backend artifacts on demand,
// and keeps the node-to-artifact index used for progressive mutation.
//
// One Context is created per backend at application start and lives for
// the process lifetime. Scopes come and go per invocation; the Context
// itself is never torn down mid-run.
type Context struct {
	backend ports.Backend
	logger  *slog.Logger
	hooks   domain.Hooks

	mu        sync.Mutex
	artifacts map[domain.NodeID]ports.Artifact
	mounted   map[domain.NodeID]bool
	scopes    map[domain.NodeID]*Scope
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(rc *Context) {
		if logger != nil {
			rc.logger = logger
		}
	}
}

// WithHooks sets lifecycle hooks for emit/build/drop events.
func WithHooks(hooks domain.Hooks) Option {
	return func(rc *Context) {
		rc.hooks = hooks
	}
}

// New creates a render context targeting backend.
func New(backend ports.Backend, opts ...Option) *Context {
	rc := &Context{
		backend:   backend,
		logger:    logging.NewNop(),
		artifacts: make(map[domain.NodeID]ports.Artifact),
		mounted:   make(map[domain.NodeID]bool),
		scopes:    make(map[domain.NodeID]*Scope),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Backend returns the backend this context targets.
func (rc *Context) Backend() ports.Backend { return rc.backend }

// Coerce turns an emitted value into exactly one output node. The cases
// are ordered and total: nodes pass through, strings become leaves, bare
// functions become deferred groups, errors become error blocks, and
// anything else is stringified.
func Coerce(value any) domain.Node {
	switch v := value.(type) {
	case domain.Node:
		return v
	case string:
		return domain.Text(v)
	case func(context.Context) error:
		return domain.Group(v)
	case error:
		return domain.ErrorText(v.Error())
	case fmt.Stringer:
		return domain.Text(v.String())
	default:
		return domain.Text(fmt.Sprint(v))
	}
}

// OpenRoot opens the root scope for one invocation and binds it, together
// with the context, into the returned ctx. The close func marks the scope
// finished; the runner defers it so release happens on every exit path.
func (rc *Context) OpenRoot(ctx context.Context) (context.Context, *Scope, func()) {
	s := &Scope{rc: rc, stack: NewStack()}
	bound := context.WithValue(ctx, bindingKey{}, binding{rc: rc, scope: s})
	return bound, s, s.Close
}

func (rc *Context) childScope(ctx context.Context, node domain.Node) (context.Context, *Scope) {
	s := &Scope{rc: rc, node: node, stack: NewStack()}
	rc.mu.Lock()
	rc.scopes[node.ID()] = s
	rc.mu.Unlock()
	bound := context.WithValue(ctx, bindingKey{}, binding{rc: rc, scope: s})
	return bound, s
}

func (rc *Context) emit(ctx context.Context, scope *Scope, value any) error {
	n := Coerce(value)
	if scope == nil {
		rc.fireEmit(ctx, n, false)
		return rc.Immediate(ctx, n)
	}
	if scope.isClosed() {
		// Recorded, never built. See the drop hook and DESIGN notes on
		// post-teardown emission.
		scope.stack.Append(n)
		rc.logger.Debug("emission after scope closed",
			"backend", rc.backend.Name(), "node", n.ID(), "kind", n.Kind())
		rc.fireDrop(ctx, n)
		if scope.Detached() {
			// A host tore this scope down; tell the worker so it can
			// stop. A scope that merely finished stays a silent drop.
			return domain.ErrDetached
		}
		return nil
	}
	scope.stack.Append(n)
	rc.fireEmit(ctx, n, false)
	return nil
}

// Immediate builds and mounts a single value directly, bypassing stack
// bookkeeping. It is the fallback for emission outside any open scope.
func (rc *Context) Immediate(ctx context.Context, value any) error {
	n := Coerce(value)
	return rc.buildAndMount(ctx, n, false)
}

// BuildScope walks the scope's stack in FIFO order, builds each node and
// mounts every top-level artifact. Nodes already built (for example by a
// Follow observer during background execution) are not built again.
func (rc *Context) BuildScope(ctx context.Context, s *Scope) error {
	for _, n := range s.stack.Snapshot() {
		if err := rc.buildAndMount(ctx, n, false); err != nil {
			return err
		}
	}
	return nil
}

// Follow builds and mounts every append to the scope as it happens, so a
// background command's output appears while it runs. Nodes already on the
// stack are built first; appends racing that walk are parked and flushed
// once it finishes, keeping mount order equal to stack order. The
// returned stop func detaches the observer.
func (rc *Context) Follow(ctx context.Context, s *Scope) (stop func()) {
	mountLate := func(ctx context.Context, n domain.Node) {
		if rc.Built(n) {
			return
		}
		if err := rc.buildAndMount(ctx, n, true); err != nil {
			rc.logger.Error("live mount failed",
				"backend", rc.backend.Name(), "node", n.ID(), "err", err)
		}
	}

	gate := &liveGate{}
	existing, remove := s.stack.ObserveFrom(func(late domain.Node) {
		liveCtx := context.WithoutCancel(ctx)
		gate.mu.Lock()
		defer gate.mu.Unlock()
		if !gate.open {
			gate.parked = append(gate.parked, late)
			return
		}
		mountLate(liveCtx, late)
	})
	s.addRemover(remove)

	for _, n := range existing {
		if err := rc.buildAndMount(ctx, n, true); err != nil {
			rc.logger.Error("live mount failed",
				"backend", rc.backend.Name(), "node", n.ID(), "err", err)
		}
	}
	gate.flush(func(n domain.Node) {
		mountLate(context.WithoutCancel(ctx), n)
	})
	return remove
}

// liveGate parks observer-path nodes while the initial walk of a live or
// followed scope is still placing earlier ones. flush hands the parked
// nodes over in stack order and opens the direct path, all under the
// gate's lock, so nothing can slip in between.
type liveGate struct {
	mu     sync.Mutex
	open   bool
	parked []domain.Node
}

func (g *liveGate) flush(fn func(domain.Node)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	for _, n := range g.parked {
		fn(n)
	}
	g.parked = nil
}

func (rc *Context) buildAndMount(ctx context.Context, n domain.Node, live bool) error {
	a, err := rc.buildNode(ctx, n, live)
	if err != nil {
		return err
	}
	rc.mu.Lock()
	if rc.mounted[n.ID()] {
		rc.mu.Unlock()
		return nil
	}
	rc.mounted[n.ID()] = true
	rc.mu.Unlock()
	return rc.backend.Mount(ctx, a)
}

// buildNode is the exhaustive dispatch over the node variants. Builds are
// cached per node: building an already-built node returns the existing
// artifact, never a duplicate.
func (rc *Context) buildNode(ctx context.Context, n domain.Node, live bool) (ports.Artifact, error) {
	if a, ok := rc.artifact(n.ID()); ok {
		return a, nil
	}

	switch node := n.(type) {
	case *domain.Deferred:
		return rc.buildDeferred(ctx, node, live)
	case *domain.Live:
		return rc.buildLive(ctx, node, live)
	case *domain.Box:
		return rc.buildBox(ctx, node, live)
	case *domain.Table:
		a, err := rc.backend.Build(ctx, node)
		if err != nil {
			return nil, err
		}
		node.Bind(rc)
		rc.remember(n, a)
		rc.fireBuild(ctx, n, live)
		return a, nil
	default:
		a, err := rc.backend.Build(ctx, node)
		if err != nil {
			return nil, err
		}
		rc.remember(n, a)
		rc.fireBuild(ctx, n, live)
		return a, nil
	}
}

func (rc *Context) buildBox(ctx context.Context, node *domain.Box, live bool) (ports.Artifact, error) {
	cont, err := rc.backend.Container(ctx, node)
	if err != nil {
		return nil, err
	}
	rc.remember(node, cont)
	for _, child := range node.Children {
		ca, err := rc.buildNode(ctx, child, live)
		if err != nil {
			return nil, err
		}
		if err := rc.backend.Append(ctx, cont, ca); err != nil {
			return nil, err
		}
	}
	rc.fireBuild(ctx, node, live)
	return cont, nil
}

// buildDeferred opens a scope, runs the thunk, and folds its emissions
// into the position the node occupies. Exactly one child collapses to
// that child's artifact; anything else becomes a container. A thunk fault
// propagates wrapped in ResolutionError; nothing is swallowed here.
func (rc *Context) buildDeferred(ctx context.Context, node *domain.Deferred, live bool) (ports.Artifact, error) {
	childCtx, scope := rc.childScope(ctx, node)
	defer scope.Close()

	if node.Fn != nil {
		if err := node.Fn(childCtx); err != nil {
			return nil, &domain.ResolutionError{Node: node.ID(), Err: err}
		}
	}

	children := scope.stack.Snapshot()
	if len(children) == 1 {
		a, err := rc.buildNode(ctx, children[0], live)
		if err != nil {
			return nil, err
		}
		rc.remember(node, a)
		rc.fireBuild(ctx, node, live)
		return a, nil
	}

	cont, err := rc.backend.Container(ctx, node)
	if err != nil {
		return nil, err
	}
	rc.remember(node, cont)
	for _, child := range children {
		ca, err := rc.buildNode(ctx, child, live)
		if err != nil {
			return nil, err
		}
		if err := rc.backend.Append(ctx, cont, ca); err != nil {
			return nil, err
		}
	}
	rc.fireBuild(ctx, node, live)
	return cont, nil
}

// buildLive runs the thunk to capture its initial emissions, builds them
// into a live container, then keeps an observer on the scope's stack so
// later appends from a still-running goroutine are built and appended to
// the same container incrementally. The scope stays open.
func (rc *Context) buildLive(ctx context.Context, node *domain.Live, live bool) (ports.Artifact, error) {
	childCtx, scope := rc.childScope(ctx, node)

	if node.Fn != nil {
		if err := node.Fn(childCtx); err != nil {
			scope.Close()
			return nil, &domain.ResolutionError{Node: node.ID(), Err: err}
		}
	}

	cont, err := rc.backend.Container(ctx, node)
	if err != nil {
		scope.Close()
		return nil, err
	}
	rc.remember(node, cont)

	appendLive := func(ctx context.Context, late domain.Node) {
		if rc.Built(late) {
			return
		}
		a, err := rc.buildNode(ctx, late, true)
		if err != nil {
			rc.logger.Error("live append build failed",
				"backend", rc.backend.Name(), "node", late.ID(), "err", err)
			return
		}
		if err := rc.backend.Append(ctx, cont, a); err != nil {
			rc.logger.Error("live append failed",
				"backend", rc.backend.Name(), "node", late.ID(), "err", err)
		}
	}

	gate := &liveGate{}
	initial, remove := scope.stack.ObserveFrom(func(late domain.Node) {
		// Synchronous on the emitting goroutine; surface backends
		// marshal the mutation onto their loop internally. While the
		// initial children are still being placed the node is parked:
		// it must not land in the container ahead of them.
		liveCtx := context.WithoutCancel(childCtx)
		gate.mu.Lock()
		defer gate.mu.Unlock()
		if !gate.open {
			gate.parked = append(gate.parked, late)
			return
		}
		appendLive(liveCtx, late)
	})
	scope.addRemover(remove)

	for _, child := range initial {
		ca, err := rc.buildNode(ctx, child, live)
		if err != nil {
			return nil, err
		}
		if err := rc.backend.Append(ctx, cont, ca); err != nil {
			return nil, err
		}
	}
	gate.flush(func(late domain.Node) {
		appendLive(context.WithoutCancel(childCtx), late)
	})
	rc.fireBuild(ctx, node, live)
	return cont, nil
}

// AppendChild resolves child, appends its artifact into parent's retained
// artifact and refreshes the backend. It implements domain.ProgressiveSink
// for tables bound to this context. Parent must have been built.
func (rc *Context) AppendChild(ctx context.Context, parent, child domain.Node) error {
	pa, ok := rc.artifact(parent.ID())
	if !ok {
		return fmt.Errorf("append to node %d: %w", parent.ID(), domain.ErrNotBuilt)
	}
	ca, err := rc.buildNode(ctx, child, true)
	if err != nil {
		return err
	}
	return rc.backend.Append(ctx, pa, ca)
}

// Built reports whether the node has an artifact in this context.
func (rc *Context) Built(n domain.Node) bool {
	_, ok := rc.artifact(n.ID())
	return ok
}

// ScopeOf returns the child scope a Deferred or Live node resolved into,
// if it has been built. Hosts use it to detach live scopes on
// cancellation.
func (rc *Context) ScopeOf(n domain.Node) (*Scope, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	s, ok := rc.scopes[n.ID()]
	return s, ok
}

// Children returns the resolved child nodes of a container node: declared
// children for a Box, captured emissions for Deferred and Live. Leaves
// return nil.
func (rc *Context) Children(n domain.Node) []domain.Node {
	switch node := n.(type) {
	case *domain.Box:
		return node.Children
	case *domain.Deferred, *domain.Live:
		rc.mu.Lock()
		s := rc.scopes[n.ID()]
		rc.mu.Unlock()
		if s == nil {
			return nil
		}
		return s.stack.Snapshot()
	default:
		return nil
	}
}

func (rc *Context) artifact(id domain.NodeID) (ports.Artifact, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	a, ok := rc.artifacts[id]
	return a, ok
}

func (rc *Context) remember(n domain.Node, a ports.Artifact) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.artifacts[n.ID()] = a
}

func (rc *Context) fireEmit(ctx context.Context, n domain.Node, live bool) {
	if rc.hooks.OnEmit == nil {
		return
	}
	rc.hooks.OnEmit(ctx, rc.renderEvent(n, live))
}

func (rc *Context) fireBuild(ctx context.Context, n domain.Node, live bool) {
	if rc.hooks.OnBuild == nil {
		return
	}
	rc.hooks.OnBuild(ctx, rc.renderEvent(n, live))
}

func (rc *Context) fireDrop(ctx context.Context, n domain.Node) {
	if rc.hooks.OnDrop == nil {
		return
	}
	rc.hooks.OnDrop(ctx, rc.renderEvent(n, false))
}

func (rc *Context) renderEvent(n domain.Node, live bool) *domain.RenderEvent {
	return &domain.RenderEvent{
		Timestamp: time.Now(),
		Backend:   rc.backend.Name(),
		Node:      n.ID(),
		NodeKind:  n.Kind(),
		Live:      live,
	}
}
