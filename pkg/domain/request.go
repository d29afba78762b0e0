package domain

// Mode selects the execution strategy for one request.
type Mode string

const (
	// ModeImmediate invokes the command body inline on the calling flow.
	ModeImmediate Mode = "immediate"
	// ModeQueued schedules the command body onto the backend's callback
	// queue (the surface event loop, or the stream's serial queue).
	ModeQueued Mode = "queued"
	// ModeBackground invokes the command body on a worker goroutine. The
	// render context is bound before the worker starts and the worker
	// keeps that same binding for the whole command.
	ModeBackground Mode = "background"
)

// Request is a resolved execution request: the command identity, concrete
// argument values, and the execution mode. Argument parsing and validation
// happen before a Request reaches the runner.
type Request struct {
	Command string `json:"command"`
	Args    Args   `json:"args,omitempty"`
	Mode    Mode   `json:"mode,omitempty"`

	// Session optionally groups runs for serialization and storage.
	Session string `json:"session,omitempty"`
}
