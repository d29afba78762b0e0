// Package middleware provides composable wrappers around a RunStore:
// encryption at rest and PII masking of argument values. Middlewares
// stack; the outermost runs first on Save and last on Load.
package middleware

import "github.com/aretw0/arbor/pkg/ports"

// Middleware allows wrapping a RunStore to add behavior.
type Middleware func(ports.RunStore) ports.RunStore

// Chain applies middlewares to store, first listed outermost.
func Chain(store ports.RunStore, mws ...Middleware) ports.RunStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
