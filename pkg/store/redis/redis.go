// Package redis is a [store.Store] on Redis. Each record is a JSON document
// under "<prefix><id>"; ids come from INCR on "<prefix>seq". Finalization uses
// an optimistic WATCH/MULTI transaction so a record changes state only once.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrWong99/narrator/pkg/store"
)

var _ store.Store = (*Store)(nil)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "narrator:request:"

const maxTxRetries = 8

// Config configures a redis store.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// Prefix overrides DefaultPrefix.
	Prefix string

	// TTL expires records after the given age. Zero keeps them forever.
	TTL time.Duration
}

// Store implements [store.Store].
type Store struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	clock  func() time.Time
}

// New connects to the server at cfg.URL and pings it.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis store: url required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis store: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: cfg.TTL, clock: time.Now}, nil
}

func (s *Store) key(id int64) string { return s.prefix + strconv.FormatInt(id, 10) }

func (s *Store) now() time.Time { return s.clock().UTC() }

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, r store.NewRecord) (*store.Record, error) {
	id, err := s.client.Incr(ctx, s.prefix+"seq").Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: next id: %w", err)
	}
	rec := store.Pending(id, r, s.now())
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("redis store: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis store: create: %w", err)
	}
	return rec, nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id int64) (*store.Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: get %d: %w", id, err)
	}
	return decode(raw)
}

// Complete implements [store.Store].
func (s *Store) Complete(ctx context.Context, id int64, c store.Completion) (*store.Record, error) {
	return s.finalize(ctx, id, func(rec *store.Record) error {
		return c.Apply(rec, s.now())
	})
}

// Fail implements [store.Store].
func (s *Store) Fail(ctx context.Context, id int64, reason string) (*store.Record, error) {
	return s.finalize(ctx, id, func(rec *store.Record) error {
		return store.MarkFailed(rec, reason, s.now())
	})
}

func (s *Store) finalize(ctx context.Context, id int64, mutate func(*store.Record) error) (*store.Record, error) {
	key := s.key(id)
	var out *store.Record

	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decode(raw)
		if err != nil {
			return err
		}
		if err := mutate(rec); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, goredis.KeepTTL)
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrFinalized):
			return nil, err
		default:
			return nil, fmt.Errorf("redis store: finalize %d: %w", id, err)
		}
	}
	return nil, fmt.Errorf("redis store: finalize %d: too much contention", id)
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements [store.Store].
func (s *Store) Close() error {
	return s.client.Close()
}

func decode(raw []byte) (*store.Record, error) {
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis store: decode: %w", err)
	}
	return &rec, nil
}
