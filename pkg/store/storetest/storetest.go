// Package storetest is a conformance suite shared by every [store.Store]
// backend.
//
// Each backend's tests call [Run] with a constructor that returns a fresh,
// empty store:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
//	}
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/narrator/pkg/store"
)

// Factory returns an empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.Store

// Run exercises the full [store.Store] contract against the stores newStore
// returns.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"IDsIncrease", testIDsIncrease},
		{"GetMissing", testGetMissing},
		{"Complete", testComplete},
		{"Fail", testFail},
		{"FinalizeOnce", testFinalizeOnce},
		{"FinalizeMissing", testFinalizeMissing},
		{"ConcurrentCreate", testConcurrentCreate},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var sample = store.NewRecord{
	Text:     "Hello there. General Kenobi!",
	Language: "en-US",
	Voice:    "en-US-Neural2-F",
	Speed:    1.25,
	Pitch:    -4.5,
}

func mustCreate(t *testing.T, s store.Store) *store.Record {
	t.Helper()
	rec, err := s.Create(context.Background(), sample)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

func testCreateAndGet(t *testing.T, s store.Store) {
	created := mustCreate(t, s)
	if created.ID <= 0 {
		t.Fatalf("id = %d, want positive", created.ID)
	}
	if created.Status != store.StatusPending {
		t.Errorf("status = %q, want pending", created.Status)
	}
	if created.AudioURL != nil || created.Duration != nil || created.FileSize != nil {
		t.Errorf("artifact fields must be nil on creation: %+v", created)
	}
	if created.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := s.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != sample.Text || got.Language != sample.Language || got.Voice != sample.Voice {
		t.Errorf("request fields not persisted: %+v", got)
	}
	if got.Speed != sample.Speed || got.Pitch != sample.Pitch {
		t.Errorf("speed/pitch = %v/%v, want %v/%v", got.Speed, got.Pitch, sample.Speed, sample.Pitch)
	}
	if got.Status != store.StatusPending {
		t.Errorf("status = %q", got.Status)
	}
}

func testIDsIncrease(t *testing.T, s store.Store) {
	a := mustCreate(t, s)
	b := mustCreate(t, s)
	if b.ID <= a.ID {
		t.Errorf("ids not increasing: %d then %d", a.ID, b.ID)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	if _, err := s.Get(context.Background(), 987654); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func testComplete(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s)

	done, err := s.Complete(ctx, rec.ID, store.Completion{
		AudioURL: "/api/audio/abc.wav",
		Duration: 1.5,
		FileSize: 72044,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != store.StatusCompleted {
		t.Errorf("status = %q", done.Status)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AudioURL == nil || *got.AudioURL != "/api/audio/abc.wav" {
		t.Errorf("audioUrl = %v", got.AudioURL)
	}
	if got.Duration == nil || *got.Duration != 1.5 {
		t.Errorf("duration = %v", got.Duration)
	}
	if got.FileSize == nil || *got.FileSize != 72044 {
		t.Errorf("fileSize = %v", got.FileSize)
	}
	if got.Status != store.StatusCompleted || got.Error != "" {
		t.Errorf("status = %q, error = %q", got.Status, got.Error)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("updatedAt %v before createdAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

func testFail(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s)

	if _, err := s.Fail(ctx, rec.ID, "gemini: provider returned HTTP 500"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusFailed || got.Error != "gemini: provider returned HTTP 500" {
		t.Errorf("status = %q, error = %q", got.Status, got.Error)
	}
	if got.AudioURL != nil || got.FileSize != nil {
		t.Errorf("failed record has artifact fields: %+v", got)
	}
}

func testFinalizeOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s)

	if _, err := s.Complete(ctx, rec.ID, store.Completion{AudioURL: "/a", FileSize: 1}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := s.Fail(ctx, rec.ID, "late"); !errors.Is(err, store.ErrFinalized) {
		t.Errorf("Fail after Complete: err = %v, want ErrFinalized", err)
	}
	if _, err := s.Complete(ctx, rec.ID, store.Completion{AudioURL: "/b"}); !errors.Is(err, store.ErrFinalized) {
		t.Errorf("second Complete: err = %v, want ErrFinalized", err)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusCompleted || got.AudioURL == nil || *got.AudioURL != "/a" {
		t.Errorf("record changed after finalization: %+v", got)
	}
}

func testFinalizeMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.Complete(ctx, 424242, store.Completion{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Complete: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Fail(ctx, 424242, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Fail: err = %v, want ErrNotFound", err)
	}
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	const n = 16
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Create(context.Background(), sample)
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- rec.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
