package render

import (
	"sync"
	"sync/atomic"

	"github.com/aretw0/arbor/pkg/domain"
)

// Observer receives every node appended to a stack, synchronously, on the
// appending flow.
type Observer func(domain.Node)

// Stack is the ordered record of output nodes for one rendering scope.
// Append never blocks on backend work and never builds an artifact; it
// only records and notifies.
//
// A stack is owned by the logical flow that opened its scope plus, for a
// live scope, whichever goroutine was handed the scope's context. The
// mutex preserves that single-writer discipline under threading; observer
// dispatch order equals append order as long as the discipline holds.
type Stack struct {
	mu        sync.Mutex
	nodes     []domain.Node
	observers []*observerEntry
}

type observerEntry struct {
	fn      Observer
	removed atomic.Bool
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Append records the node and then invokes every registered observer with
// it, in registration order, before returning. Observers run outside the
// stack's lock, so an observer may append again, to this stack or another,
// without corrupting iteration.
func (s *Stack) Append(n domain.Node) {
	s.mu.Lock()
	s.nodes = append(s.nodes, n)
	obs := make([]*observerEntry, len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	for _, e := range obs {
		if e.removed.Load() {
			continue
		}
		e.fn(n)
	}
}

// Observe registers fn for every subsequent append. Observers are never
// removed automatically; the returned func detaches this one, which hosts
// use on cancellation to avoid unbounded retention.
func (s *Stack) Observe(fn Observer) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observe(fn)
}

// ObserveFrom atomically snapshots the current contents and registers fn
// for appends after the snapshot. The two-in-one form closes the gap a
// separate Snapshot+Observe pair would leave against a concurrent writer.
func (s *Stack) ObserveFrom(fn Observer) (existing []domain.Node, remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing = make([]domain.Node, len(s.nodes))
	copy(existing, s.nodes)
	return existing, s.observe(fn)
}

func (s *Stack) observe(fn Observer) (remove func()) {
	e := &observerEntry{fn: fn}
	s.observers = append(s.observers, e)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		e.removed.Store(true)
		for i, cur := range s.observers {
			if cur == e {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns a copy of the recorded nodes in append order.
func (s *Stack) Snapshot() []domain.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len returns the number of recorded nodes.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}
