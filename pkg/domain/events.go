package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventCommandStart EventType = "command_start"
	EventCommandEnd   EventType = "command_end"
	EventEmit         EventType = "emit"
	EventBuild        EventType = "build"
	EventDrop         EventType = "drop"
)

// CommandEvent describes the start or end of one run.
type CommandEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	Command   string        `json:"command"`
	Mode      Mode          `json:"mode"`
	Status    Status        `json:"status,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// RenderEvent describes one node passing through the pipeline: an append
// to an output stack (emit) or the production of a backend artifact
// (build). Live reports whether the node arrived via the observer path
// rather than the initial walk.
type RenderEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`
	Node      NodeID    `json:"node"`
	NodeKind  Kind      `json:"kind"`
	Live      bool      `json:"live,omitempty"`
}

// Hooks defines callbacks for pipeline observability. All fields are
// optional. Callbacks run synchronously on the emitting flow and must not
// block.
type Hooks struct {
	OnCommandStart func(context.Context, *CommandEvent)
	OnCommandEnd   func(context.Context, *CommandEvent)
	OnEmit         func(context.Context, *RenderEvent)
	OnBuild        func(context.Context, *RenderEvent)

	// OnDrop fires when an emission reaches a closed or detached scope
	// and is recorded without being built.
	OnDrop func(context.Context, *RenderEvent)
}

// Join combines two hook sets; both fire, h first.
func (h Hooks) Join(other Hooks) Hooks {
	return Hooks{
		OnCommandStart: joinHook(h.OnCommandStart, other.OnCommandStart),
		OnCommandEnd:   joinHook(h.OnCommandEnd, other.OnCommandEnd),
		OnEmit:         joinHook(h.OnEmit, other.OnEmit),
		OnBuild:        joinHook(h.OnBuild, other.OnBuild),
		OnDrop:         joinHook(h.OnDrop, other.OnDrop),
	}
}

func joinHook[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
