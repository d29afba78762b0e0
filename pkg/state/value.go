// Package state provides small observable cells and a helper that binds
// a cell to a live region of the output, so handlers can publish values
// and have the rendered view follow along.
package state

import "sync"

// Value is a concurrency-safe observable cell. Observers fire
// synchronously on the mutating flow, in registration order, and must not
// block.
type Value[T any] struct {
	mu        sync.Mutex
	current   T
	observers map[int]func(T)
	nextID    int
}

// NewValue creates a cell holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current:   initial,
		observers: make(map[int]func(T)),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the value and notifies observers.
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	v.current = next
	fns := v.snapshot()
	v.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

// Update applies fn to the current value under the lock and notifies
// observers with the result.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	v.current = fn(v.current)
	next := v.current
	fns := v.snapshot()
	v.mu.Unlock()

	for _, obs := range fns {
		obs(next)
	}
	return next
}

// Observe registers fn to run on every change. The returned remover
// unregisters it; removal is idempotent.
func (v *Value[T]) Observe(fn func(T)) (remove func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.observers[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.observers, id)
		v.mu.Unlock()
	}
}

// snapshot must be called with the lock held. Observers registered during
// dispatch see only later changes.
func (v *Value[T]) snapshot() []func(T) {
	ids := make([]int, 0, len(v.observers))
	for id := range v.observers {
		ids = append(ids, id)
	}
	// Registration order.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = v.observers[id]
	}
	return fns
}
