package runner

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
)

// Run is one in-flight or finished invocation. It is created by Submit
// and completed exactly once; Done is closed on completion.
type Run struct {
	id  string
	req domain.Request

	scope *render.Scope
	done  chan struct{}

	mu     sync.Mutex
	result domain.Result
}

// ID returns the run's unique identifier.
func (r *Run) ID() string { return r.id }

// Request returns the request this run was submitted with.
func (r *Run) Request() domain.Request { return r.req }

// Done is closed when the run has completed.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run completes or ctx is cancelled.
func (r *Run) Wait(ctx context.Context) (domain.Result, error) {
	select {
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	case <-r.done:
		return r.Result(), nil
	}
}

// Result returns the run's outcome. Before completion it reports the
// zero Result with only the IDs filled in; callers normally Wait first.
func (r *Run) Result() domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Finished reports whether the run has completed.
func (r *Run) Finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Observe registers fn on the run's root stack: it fires synchronously
// for every top-level emission, including those arriving while a
// background run is still executing. The returned func detaches it.
func (r *Run) Observe(fn func(domain.Node)) (remove func()) {
	return r.scope.Stack().Observe(fn)
}

// ObserveFrom atomically snapshots the emissions already on the run's
// root stack and registers fn for later ones, so a subscriber arriving
// mid-run sees every emission exactly once.
func (r *Run) ObserveFrom(fn func(domain.Node)) (existing []domain.Node, remove func()) {
	return r.scope.Stack().ObserveFrom(fn)
}

// Detach unhooks the run's live observers. Nothing further reaches the
// backend; a cancelled background command that keeps emitting gets
// domain.ErrDetached back and can wind down.
func (r *Run) Detach() {
	r.scope.Detach()
}

func (r *Run) complete(res domain.Result) {
	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
	close(r.done)
}
