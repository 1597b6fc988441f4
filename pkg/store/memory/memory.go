// Package memory is an in-process [store.Store]. Records are lost on restart;
// it is meant for development and tests.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/narrator/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store is a thread-safe, map-backed record store. The zero value is ready to
// use.
type Store struct {
	mu      sync.RWMutex
	records map[int64]*store.Record
	lastID  int64

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[int64]*store.Record)}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create implements [store.Store].
func (s *Store) Create(_ context.Context, r store.NewRecord) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		s.records = make(map[int64]*store.Record)
	}
	s.lastID++
	rec := store.Pending(s.lastID, r, s.now())
	s.records[rec.ID] = rec
	return clone(rec), nil
}

// Get implements [store.Store].
func (s *Store) Get(_ context.Context, id int64) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(rec), nil
}

// Complete implements [store.Store].
func (s *Store) Complete(_ context.Context, id int64, c store.Completion) (*store.Record, error) {
	return s.update(id, func(rec *store.Record, now time.Time) error {
		return c.Apply(rec, now)
	})
}

// Fail implements [store.Store].
func (s *Store) Fail(_ context.Context, id int64, reason string) (*store.Record, error) {
	return s.update(id, func(rec *store.Record, now time.Time) error {
		return store.MarkFailed(rec, reason, now)
	})
}

func (s *Store) update(id int64, fn func(*store.Record, time.Time) error) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := fn(rec, s.now()); err != nil {
		return nil, err
	}
	return clone(rec), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping implements [store.Store]. It always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements [store.Store]. Records stay readable; the log line only
// reports how many will be lost with the process.
func (s *Store) Close() error {
	if n := s.Len(); n > 0 {
		slog.Info("memory store closed, records are not persisted", "records", n)
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate stored state.
func clone(r *store.Record) *store.Record {
	out := *r
	if r.AudioURL != nil {
		v := *r.AudioURL
		out.AudioURL = &v
	}
	if r.Duration != nil {
		v := *r.Duration
		out.Duration = &v
	}
	if r.FileSize != nil {
		v := *r.FileSize
		out.FileSize = &v
	}
	return &out
}
