// Package memory provides an in-memory run store, suitable for tests and
// single-process hosts that do not need durable transcripts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.Record
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.Record),
	}
}

// Save persists the record in memory, overwriting any previous record
// with the same run ID.
func (s *Store) Save(ctx context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.RunID] = rec
	return nil
}

// Load retrieves a record by run ID.
func (s *Store) Load(ctx context.Context, runID string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[runID]
	if !ok {
		return domain.Record{}, domain.ErrRunNotFound
	}
	return rec, nil
}

// List returns records newest first, filtered by session when session is
// non-empty.
func (s *Store) List(ctx context.Context, session string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.Record, 0, len(s.data))
	for _, rec := range s.data {
		if session != "" && rec.Session != session {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

// Delete removes a record by run ID.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}
