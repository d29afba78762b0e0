// Package redis provides a Redis-backed run store and distributed locker.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.RunStore using Redis. Records are stored as
// JSON values; two sorted sets (global and per-session) index run IDs by
// start time so List stays ordered without scanning keys.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for run records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for run records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "arbor:run:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey(session string) string {
	if session == "" {
		return s.prefix + "index"
	}
	return s.prefix + "index:" + session
}

// Save persists the record to Redis.
func (s *Store) Save(ctx context.Context, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := s.client.Pipeline()

	// 1. Save JSON with TTL (0 = keep forever)
	pipe.Set(ctx, s.key(rec.RunID), data, s.ttl)

	// 2. Index by start time, globally and per session
	score := float64(rec.StartedAt.UnixNano())
	pipe.ZAdd(ctx, s.indexKey(""), backend.Z{Score: score, Member: rec.RunID})
	if rec.Session != "" {
		pipe.ZAdd(ctx, s.indexKey(rec.Session), backend.Z{Score: score, Member: rec.RunID})
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a record from Redis.
func (s *Store) Load(ctx context.Context, runID string) (domain.Record, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Result()
	if err != nil {
		if err == backend.Nil {
			return domain.Record{}, domain.ErrRunNotFound
		}
		return domain.Record{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var rec domain.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// List returns records newest first, filtered by session when session is
// non-empty. Records whose value has expired are pruned from the index
// lazily.
func (s *Store) List(ctx context.Context, session string) ([]domain.Record, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	records := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(ctx, id)
		if err == domain.ErrRunNotFound {
			// Value expired; drop the stale index entry.
			s.client.ZRem(ctx, s.indexKey(session), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete removes a run record and its index entries.
func (s *Store) Delete(ctx context.Context, runID string) error {
	rec, err := s.Load(ctx, runID)
	if err != nil && err != domain.ErrRunNotFound {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(""), runID)
	if rec.Session != "" {
		pipe.ZRem(ctx, s.indexKey(rec.Session), runID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
