/*
Package render implements the render context and output stack: the core
of the Arbor output pipeline.

A Context resolves arbitrary emitted values into output nodes, records
them on per-scope Stacks, and lazily turns each node into a backend
artifact, preserving emission order at any nesting depth. Deferred and
Live nodes open child scopes; Live scopes keep an observer registered so
a background goroutine can keep appending into an already-rendered
container.

The "current" binding travels inside a context.Context (see Emit and
Context.OpenRoot), so concurrent invocations never share mutable state
beyond the per-stack mutex.
*/
package render
