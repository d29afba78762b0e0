package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Artifact is an opaque, backend-specific handle for a rendered node: a
// widget on the interactive surface, a text fragment on the stream. The
// render context stores artifacts in its index and hands them back to the
// same backend for appends and mounts; backends may assume their own
// concrete types.
type Artifact any

// Backend turns output nodes into artifacts and places them in the visible
// output. Implementations decide representation and styling; the render
// context owns resolution, ordering and the artifact index.
//
// Interactive-surface implementations must marshal all artifact mutation
// onto their own event loop; calls arriving from other goroutines are
// queued, never applied directly.
type Backend interface {
	// Name identifies the backend in logs and render events.
	Name() string

	// Build renders a leaf or structured node, including its immediate
	// children, into a new artifact. Deferred and Live nodes never reach
	// Build; the render context resolves them into containers first.
	Build(ctx context.Context, node domain.Node) (Artifact, error)

	// Container creates an empty container artifact for a deferred or
	// live scope. Children arrive later through Append.
	Container(ctx context.Context, node domain.Node) (Artifact, error)

	// Append attaches a built child into a container or progressive
	// artifact and refreshes the visible output so the child renders
	// immediately.
	Append(ctx context.Context, parent, child Artifact) error

	// Mount delivers a top-level artifact to the backend root.
	Mount(ctx context.Context, a Artifact) error
}

// Scheduler is implemented by backends that own a callback queue. The
// runner uses it for queued-mode execution: the command body runs on the
// backend's own loop instead of the submitting flow.
type Scheduler interface {
	Schedule(fn func())
}
