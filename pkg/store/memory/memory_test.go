package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/narrator/pkg/store"
	"github.com/MrWong99/narrator/pkg/store/memory"
	"github.com/MrWong99/narrator/pkg/store/storetest"
)

func TestConformance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
}

func TestZeroValueUsable(t *testing.T) {
	t.Parallel()
	var s memory.Store
	rec, err := s.Create(context.Background(), store.NewRecord{Text: "hi"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != 1 || s.Len() != 1 {
		t.Errorf("id = %d, len = %d", rec.ID, s.Len())
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()
	rec, _ := s.Create(ctx, store.NewRecord{Text: "hi"})
	done, err := s.Complete(ctx, rec.ID, store.Completion{AudioURL: "/a.wav"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	*done.AudioURL = "/tampered"
	rec.Text = "tampered"

	got, _ := s.Get(ctx, rec.ID)
	if got.Text != "hi" || *got.AudioURL != "/a.wav" {
		t.Errorf("stored record mutated through a returned pointer: %+v", got)
	}
}

func TestClockOverride(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := memory.New()
	s.Now = func() time.Time { return fixed }
	rec, _ := s.Create(context.Background(), store.NewRecord{Text: "hi"})
	if !rec.CreatedAt.Equal(fixed) || !rec.UpdatedAt.Equal(fixed) {
		t.Errorf("timestamps = %v / %v", rec.CreatedAt, rec.UpdatedAt)
	}
}

func TestCloseKeepsRecords(t *testing.T) {
	t.Parallel()
	s := memory.New()
	rec, _ := s.Create(context.Background(), store.NewRecord{Text: "hi"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d after Close, want 1", s.Len())
	}
	if _, err := s.Get(context.Background(), rec.ID); err != nil {
		t.Errorf("Get after Close: %v", err)
	}
}
