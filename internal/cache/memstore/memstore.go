// Package memstore is an in-process cache.Store backed by a bounded LRU.
// It serves single-instance deployments and tests.
package memstore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/places-cache-gateway/internal/cache"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
)

const DefaultSize = 10_000

type item struct {
	entry    cache.Entry
	deadline time.Time // zero means no expiry
}

type Store struct {
	lru *lru.Cache[string, item]
	now func() time.Time

	// set by tests to simulate an unavailable store
	down atomic.Bool
}

var _ cache.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the clock used for per-entry expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(size int, opts ...Option) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	// size is positive, so New cannot fail
	c, _ := lru.New[string, item](size)
	s := &Store{lru: c, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetDown makes every subsequent operation fail with ErrUnavailable.
func (s *Store) SetDown(down bool) { s.down.Store(down) }

var ErrUnavailable = errors.New("memstore: unavailable")

func (s *Store) Ping(context.Context) error {
	if s.down.Load() {
		return ErrUnavailable
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok, err := s.GetWithMetadata(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return e.Value, true, nil
}

func (s *Store) GetWithMetadata(ctx context.Context, key string) (cache.Entry, bool, error) {
	start := time.Now()
	e, ok, err := s.get(ctx, key)
	observability.ObserveCacheOp("get_meta", err, time.Since(start).Seconds())
	return e, ok, err
}

func (s *Store) get(ctx context.Context, key string) (cache.Entry, bool, error) {
	if key == "" {
		return cache.Entry{}, false, cache.ErrEmptyKey
	}
	if err := s.check(ctx); err != nil {
		return cache.Entry{}, false, err
	}
	it, ok := s.lru.Get(key)
	if !ok {
		return cache.Entry{}, false, nil
	}
	if !it.deadline.IsZero() && !s.now().Before(it.deadline) {
		s.lru.Remove(key)
		return cache.Entry{}, false, nil
	}
	v := make([]byte, len(it.entry.Value))
	copy(v, it.entry.Value)
	return cache.Entry{Value: v, Metadata: it.entry.Metadata}, true, nil
}

func (s *Store) Put(ctx context.Context, key string, val []byte, opts cache.PutOptions) error {
	if key == "" {
		return cache.ErrEmptyKey
	}
	start := time.Now()
	err := s.check(ctx)
	if err == nil {
		it := item{entry: cache.Entry{Value: append([]byte(nil), val...), Metadata: opts.Metadata}}
		if opts.TTL > 0 {
			it.deadline = s.now().Add(opts.TTL)
		}
		s.lru.Add(key, it)
	}
	observability.ObserveCacheOp("put", err, time.Since(start).Seconds())
	return err
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, k := range keys {
		s.lru.Remove(k)
	}
	observability.ObserveCacheOp("del", nil, 0)
	return nil
}

// Len reports the number of entries, including ones past their deadline
// that have not been read since.
func (s *Store) Len() int { return s.lru.Len() }

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.down.Load() {
		return ErrUnavailable
	}
	return nil
}
