package domain

import (
	"errors"
	"fmt"
)

// ErrNoScope is returned when emission is attempted with no render context
// bound to the calling context. This is a programming error in the host
// application, not a recoverable runtime condition.
var ErrNoScope = errors.New("no active render scope")

// ErrNotBuilt is returned when a progressive mutation is attempted before
// the node has been built at least once.
var ErrNotBuilt = errors.New("node has not been built")

// ErrDetached is returned when emission reaches a scope whose observers
// have been detached by the host (e.g. after cancellation or teardown).
var ErrDetached = errors.New("render scope detached")

// ErrOffLoop is returned when a surface artifact is mutated from outside
// the surface's event loop instead of through the marshalling path.
var ErrOffLoop = errors.New("artifact mutated outside the surface loop")

// ErrUnknownCommand is returned when an execution request names a command
// that was never registered.
var ErrUnknownCommand = errors.New("unknown command")

// ErrDuplicateCommand is returned when a command name is registered twice.
var ErrDuplicateCommand = errors.New("command already registered")

// ErrRunNotFound is returned when a run ID cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// ResolutionError wraps a fault raised by a Deferred or Live thunk during
// node resolution. The render context never swallows it; the runner's
// invocation boundary converts it into the run's fault.
type ResolutionError struct {
	Node NodeID
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving node %d: %v", e.Node, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ArgumentError reports an execution request argument that failed
// validation against the command's parameter specs.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Param, e.Reason)
}
