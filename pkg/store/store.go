// Package store defines the Request Record Store: the persisted record of every
// submitted synthesis job and, once the job finishes, its audio metadata.
//
// A [Record] is created in [StatusPending] when a job is accepted and is
// finalized exactly once, either by [Store.Complete] with the artifact
// metadata or by [Store.Fail] with the failure reason. Backends live in the
// sub-packages memory, postgres, sqlite and redis; all of them are safe for
// concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("store: record not found")

// ErrFinalized is returned when Complete or Fail targets a record that has
// already left the pending state.
var ErrFinalized = errors.New("store: record already finalized")

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one persisted synthesis job. The artifact fields are nil until the
// job completes.
type Record struct {
	ID       int64   `json:"id"`
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
	Pitch    float64 `json:"pitch"`
	Status   Status  `json:"status"`
	Error    string  `json:"error,omitempty"`

	AudioURL *string  `json:"audioUrl"`
	Duration *float64 `json:"duration"`
	FileSize *int64   `json:"fileSize"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRecord holds the request fields a record is created from.
type NewRecord struct {
	Text     string
	Language string
	Voice    string
	Speed    float64
	Pitch    float64
}

// Completion is the artifact metadata written when a job succeeds.
type Completion struct {
	AudioURL string
	Duration float64
	FileSize int64
}

// Store persists job records.
type Store interface {
	// Create inserts a pending record and returns it with its assigned id.
	Create(ctx context.Context, r NewRecord) (*Record, error)

	// Get returns the record with the given id or [ErrNotFound].
	Get(ctx context.Context, id int64) (*Record, error)

	// Complete marks a pending record completed and attaches the artifact
	// metadata. It returns [ErrNotFound] or [ErrFinalized] accordingly.
	Complete(ctx context.Context, id int64, c Completion) (*Record, error)

	// Fail marks a pending record failed with the given reason.
	Fail(ctx context.Context, id int64, reason string) (*Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Pending returns a new pending record built from r. Backends use it so every
// implementation starts records from the same state.
func Pending(id int64, r NewRecord, now time.Time) *Record {
	return &Record{
		ID:        id,
		Text:      r.Text,
		Language:  r.Language,
		Voice:     r.Voice,
		Speed:     r.Speed,
		Pitch:     r.Pitch,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply finalizes rec in place with c. It returns [ErrFinalized] if rec is not
// pending.
func (c Completion) Apply(rec *Record, now time.Time) error {
	if rec.Status != StatusPending {
		return ErrFinalized
	}
	url, dur, size := c.AudioURL, c.Duration, c.FileSize
	rec.AudioURL = &url
	rec.Duration = &dur
	rec.FileSize = &size
	rec.Status = StatusCompleted
	rec.UpdatedAt = now
	return nil
}

// MarkFailed finalizes rec in place as failed. It returns [ErrFinalized] if rec
// is not pending.
func MarkFailed(rec *Record, reason string, now time.Time) error {
	if rec.Status != StatusPending {
		return ErrFinalized
	}
	rec.Status = StatusFailed
	rec.Error = reason
	rec.UpdatedAt = now
	return nil
}
