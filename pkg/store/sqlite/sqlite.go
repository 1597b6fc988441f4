// Package sqlite is a single-file [store.Store] using the pure-Go
// modernc.org/sqlite driver through database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/narrator/pkg/store"
)

var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS tts_requests (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    text       TEXT    NOT NULL,
    language   TEXT    NOT NULL,
    voice      TEXT    NOT NULL,
    speed      REAL    NOT NULL DEFAULT 1,
    pitch      REAL    NOT NULL DEFAULT 0,
    status     TEXT    NOT NULL DEFAULT 'pending',
    error      TEXT    NOT NULL DEFAULT '',
    audio_url  TEXT,
    duration   REAL,
    file_size  INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tts_requests_created_at ON tts_requests(created_at);
`

// Store implements [store.Store] on a SQLite database file.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens (creating if needed) the database at path and initializes the
// schema. Parent directories are created.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// SQLite permits a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: init schema: %w", err)
	}
	return &Store{db: db, clock: time.Now}, nil
}

func (s *Store) now() int64 { return s.clock().UTC().UnixNano() }

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, r store.NewRecord) (*store.Record, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tts_requests(text, language, voice, speed, pitch, status, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, 'pending', ?, ?)`,
		r.Text, r.Language, r.Voice, r.Speed, r.Pitch, now, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: create: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite store: create: %w", err)
	}
	return store.Pending(id, r, time.Unix(0, now).UTC()), nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id int64) (*store.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, language, voice, speed, pitch, status, error,
		        audio_url, duration, file_size, created_at, updated_at
		 FROM tts_requests WHERE id = ?`, id)

	var (
		rec              store.Record
		status           string
		url              sql.NullString
		duration         sql.NullFloat64
		size             sql.NullInt64
		created, updated int64
	)
	err := row.Scan(&rec.ID, &rec.Text, &rec.Language, &rec.Voice, &rec.Speed, &rec.Pitch,
		&status, &rec.Error, &url, &duration, &size, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get %d: %w", id, err)
	}

	rec.Status = store.Status(status)
	if url.Valid {
		rec.AudioURL = &url.String
	}
	if duration.Valid {
		rec.Duration = &duration.Float64
	}
	if size.Valid {
		rec.FileSize = &size.Int64
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return &rec, nil
}

// Complete implements [store.Store].
func (s *Store) Complete(ctx context.Context, id int64, c store.Completion) (*store.Record, error) {
	return s.finalize(ctx, id,
		`UPDATE tts_requests
		 SET status = 'completed', audio_url = ?, duration = ?, file_size = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		c.AudioURL, c.Duration, c.FileSize, s.now(), id)
}

// Fail implements [store.Store].
func (s *Store) Fail(ctx context.Context, id int64, reason string) (*store.Record, error) {
	return s.finalize(ctx, id,
		`UPDATE tts_requests
		 SET status = 'failed', error = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		reason, s.now(), id)
}

func (s *Store) finalize(ctx context.Context, id int64, q string, args ...any) (*store.Record, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: update %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite store: update %d: %w", id, err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrFinalized
	}
	return s.Get(ctx, id)
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [store.Store].
func (s *Store) Close() error {
	return s.db.Close()
}
