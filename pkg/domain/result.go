package domain

import (
	"encoding/json"
	"time"
)

// Status reports how a run ended (or that it has not ended yet).
type Status string

const (
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusFault   Status = "fault"
)

// Result is the outcome of one command invocation: the handler's return
// value, the fault (if any), and the fully rendered transcript of
// everything emitted. A faulted run still carries everything emitted
// before the fault.
type Result struct {
	RunID   string
	Command string

	// Value is the handler's return value. A non-nil value was also
	// appended to the root scope as a final emission.
	Value any

	// Err is the run's fault, nil on success. Thunk faults arrive wrapped
	// in ResolutionError.
	Err error

	// Transcript is the plain text rendering of the root scope, one
	// element per top-level emission. Live emissions that arrive after
	// the run ended are not included.
	Transcript []string

	// Tree is the JSON form of the emitted node tree.
	Tree json.RawMessage

	StartedAt time.Time
	Duration  time.Duration
}

// Status derives the terminal status of the result.
func (r Result) Status() Status {
	if r.Err != nil {
		return StatusFault
	}
	return StatusOK
}

// Record is the stored form of a run, as persisted by a RunStore and
// served by the HTTP adapter.
type Record struct {
	RunID      string          `json:"run_id"`
	Session    string          `json:"session,omitempty"`
	Command    string          `json:"command"`
	Args       Args            `json:"args,omitempty"`
	Status     Status          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Value      any             `json:"value,omitempty"`
	Transcript []string        `json:"transcript,omitempty"`
	Tree       json.RawMessage `json:"tree,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
}

// NewRecord converts a finished Result into its stored form.
func NewRecord(res Result, req Request) Record {
	rec := Record{
		RunID:      res.RunID,
		Session:    req.Session,
		Command:    res.Command,
		Args:       req.Args,
		Status:     res.Status(),
		Value:      res.Value,
		Transcript: res.Transcript,
		Tree:       res.Tree,
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}
