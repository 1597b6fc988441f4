package redis_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/MrWong99/narrator/pkg/store"
	"github.com/MrWong99/narrator/pkg/store/redis"
	"github.com/MrWong99/narrator/pkg/store/storetest"
)

func newTestStore(t *testing.T, cfg redis.Config) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg.URL = "redis://" + mr.Addr()
	s, err := redis.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestConformance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newTestStore(t, redis.Config{})
		return s
	})
}

func TestKeysUsePrefix(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t, redis.Config{Prefix: "tts:"})
	rec, err := s.Create(context.Background(), store.NewRecord{Text: "hi"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !mr.Exists("tts:1") || rec.ID != 1 {
		t.Fatalf("keys = %v, id = %d", mr.Keys(), rec.ID)
	}
	if got, _ := mr.Get("tts:seq"); got != "1" {
		t.Errorf("seq = %q, want 1", got)
	}
}

func TestTTLAppliedAndKept(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t, redis.Config{TTL: time.Hour})
	ctx := context.Background()

	rec, err := s.Create(ctx, store.NewRecord{Text: "hi"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	key := redis.DefaultPrefix + "1"
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("ttl after create = %v, want 1h", ttl)
	}

	if _, err := s.Fail(ctx, rec.ID, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("ttl after finalize = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := s.Get(ctx, rec.ID); err != store.ErrNotFound {
		t.Errorf("expired record: err = %v, want ErrNotFound", err)
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()
	if _, err := redis.New(context.Background(), redis.Config{}); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := redis.New(context.Background(), redis.Config{URL: "http://nope"}); err == nil {
		t.Error("expected error for non-redis url")
	}
}
