package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// RunStore defines the interface for persisting run records. It gives
// embedding servers a durable transcript history ("what did this command
// show, and when").
type RunStore interface {
	// Save persists the record, overwriting any previous record with the
	// same run ID.
	Save(ctx context.Context, rec domain.Record) error

	// Load retrieves a record by run ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (domain.Record, error)

	// List returns records newest first, filtered by session when session
	// is non-empty.
	List(ctx context.Context, session string) ([]domain.Record, error)

	// Delete removes a record by run ID.
	Delete(ctx context.Context, runID string) error
}
