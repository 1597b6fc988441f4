// Package postgres is a PostgreSQL-backed [store.Store] built on a single
// [pgxpool.Pool].
//
// [New] connects, pings and runs [Migrate], so a freshly provisioned database
// is usable immediately:
//
//	s, err := postgres.New(ctx, "postgres://narrator@localhost/narrator")
//	if err != nil { … }
//	defer s.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/narrator/pkg/store"
)

var _ store.Store = (*Store)(nil)

const ddlRequests = `
CREATE TABLE IF NOT EXISTS tts_requests (
    id          BIGSERIAL         PRIMARY KEY,
    text        TEXT              NOT NULL,
    language    TEXT              NOT NULL,
    voice       TEXT              NOT NULL,
    speed       DOUBLE PRECISION  NOT NULL DEFAULT 1,
    pitch       DOUBLE PRECISION  NOT NULL DEFAULT 0,
    status      TEXT              NOT NULL DEFAULT 'pending',
    error       TEXT              NOT NULL DEFAULT '',
    audio_url   TEXT,
    duration    DOUBLE PRECISION,
    file_size   BIGINT,
    created_at  TIMESTAMPTZ       NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tts_requests_created_at
    ON tts_requests (created_at);
`

const recordColumns = `id, text, language, voice, speed, pitch, status, error,
	audio_url, duration, file_size, created_at, updated_at`

// Migrate creates the tts_requests table if it does not exist. It is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlRequests); err != nil {
		return fmt.Errorf("postgres store: migrate: %w", err)
	}
	return nil
}

// Store implements [store.Store]. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a connection pool for dsn, verifies connectivity and migrates
// the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, r store.NewRecord) (*store.Record, error) {
	q := `
		INSERT INTO tts_requests (text, language, voice, speed, pitch, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING ` + recordColumns

	rec, err := scanRecord(s.pool.QueryRow(ctx, q, r.Text, r.Language, r.Voice, r.Speed, r.Pitch))
	if err != nil {
		return nil, fmt.Errorf("postgres store: create: %w", err)
	}
	return rec, nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id int64) (*store.Record, error) {
	q := `SELECT ` + recordColumns + ` FROM tts_requests WHERE id = $1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get %d: %w", id, err)
	}
	return rec, nil
}

// Complete implements [store.Store].
func (s *Store) Complete(ctx context.Context, id int64, c store.Completion) (*store.Record, error) {
	q := `
		UPDATE tts_requests
		SET    status = 'completed', audio_url = $2, duration = $3, file_size = $4, updated_at = now()
		WHERE  id = $1 AND status = 'pending'
		RETURNING ` + recordColumns

	return s.finalize(ctx, id, "complete", q, id, c.AudioURL, c.Duration, c.FileSize)
}

// Fail implements [store.Store].
func (s *Store) Fail(ctx context.Context, id int64, reason string) (*store.Record, error) {
	q := `
		UPDATE tts_requests
		SET    status = 'failed', error = $2, updated_at = now()
		WHERE  id = $1 AND status = 'pending'
		RETURNING ` + recordColumns

	return s.finalize(ctx, id, "fail", q, id, reason)
}

// finalize runs a conditional update and, when no pending row matched,
// distinguishes a missing record from an already finalized one.
func (s *Store) finalize(ctx context.Context, id int64, op, q string, args ...any) (*store.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, q, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: %s %d: %w", op, id, err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tts_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres store: %s %d: %w", op, id, err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrFinalized
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [store.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*store.Record, error) {
	var (
		rec    store.Record
		status string
	)
	err := row.Scan(
		&rec.ID, &rec.Text, &rec.Language, &rec.Voice, &rec.Speed, &rec.Pitch,
		&status, &rec.Error,
		&rec.AudioURL, &rec.Duration, &rec.FileSize,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = store.Status(status)
	rec.CreatedAt = rec.CreatedAt.In(time.UTC)
	rec.UpdatedAt = rec.UpdatedAt.In(time.UTC)
	return &rec, nil
}
