package render

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Scope is one rendering scope: a stack plus its place in the scope tree.
// The root scope of a run is opened by the runner; child scopes are opened
// by the render context while resolving Deferred and Live nodes.
//
// A scope travels inside a context.Context, so the "current" binding is a
// per-flow value with guaranteed release, never a process global.
type Scope struct {
	rc    *Context
	node  domain.Node // the Deferred/Live node this scope resolves; nil at the root
	stack *Stack

	mu       sync.Mutex
	closed   bool
	detached bool
	removers []func()
}

// Stack returns the scope's output stack.
func (s *Scope) Stack() *Stack { return s.stack }

// Close marks the scope finished. Later emissions are still recorded on
// the stack but are not built; they are logged and reported through the
// drop hook. Live scopes are left open by the build walk and only close
// through Detach or an explicit Close by the host.
func (s *Scope) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Detach unhooks every observer the render context registered on this
// scope and closes it. A cancelled background command keeps a detached
// scope harmlessly: its emissions are recorded and dropped, and Emit
// reports domain.ErrDetached so the worker knows to stop.
func (s *Scope) Detach() {
	s.mu.Lock()
	s.detached = true
	s.closed = true
	removers := s.removers
	s.removers = nil
	s.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
}

// Detached reports whether Detach has been called.
func (s *Scope) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

func (s *Scope) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scope) addRemover(remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		remove()
		return
	}
	s.removers = append(s.removers, remove)
}

type bindingKey struct{}

// binding is the per-flow pair carried in a context.Context. scope may be
// nil when only a render context is bound; emission then takes the
// immediate path.
type binding struct {
	rc    *Context
	scope *Scope
}

func fromCtx(ctx context.Context) (binding, bool) {
	b, ok := ctx.Value(bindingKey{}).(binding)
	return b, ok
}

// WithContext binds rc into ctx without opening a scope. Emissions through
// the returned context take the immediate path: the node is built and
// mounted directly, with no stack bookkeeping.
func WithContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, bindingKey{}, binding{rc: rc})
}

// FromContext returns the render context bound into ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	b, ok := fromCtx(ctx)
	if !ok {
		return nil, false
	}
	return b.rc, true
}

// ScopeFromContext returns the scope bound into ctx, if any.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	b, ok := fromCtx(ctx)
	if !ok || b.scope == nil {
		return nil, false
	}
	return b.scope, true
}

// Emit is the emission primitive. It resolves the binding from ctx,
// coerces value into exactly one output node and appends it to the active
// stack; with a context bound but no open scope it falls back to the
// immediate path. With no binding at all it returns domain.ErrNoScope:
// emitting outside any command scope is a programming error in the host.
func Emit(ctx context.Context, value any) error {
	b, ok := fromCtx(ctx)
	if !ok {
		return domain.ErrNoScope
	}
	return b.rc.emit(ctx, b.scope, value)
}
