/*
Package runner coordinates command execution for the Arbor output
pipeline.

A Runner binds a render context to one invocation, invokes the command
body under that binding, and converts whatever happens (return value,
error, panic) into a Result with a complete transcript. Three execution
modes are supported:

  - immediate: the handler runs inline on the submitting flow;
  - queued: the handler is scheduled onto the backend's callback queue;
  - background: the handler runs on a worker goroutine, bound before the
    worker starts, with emissions built live as they happen.

The binding travels in the context.Context passed to the handler, so
release is guaranteed on every exit path and concurrent runs never see
each other's scopes.
*/
package runner
