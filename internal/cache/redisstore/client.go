// Package redisstore wraps Redis client operations used by the cache.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/places-cache-gateway/internal/cache"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
)

// hash fields of a stored entry
const (
	fieldValue = "v"
	fieldTS    = "ts"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) { o.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

var _ cache.Store = (*Client)(nil)

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	c := &Client{rdb: rdb}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns only the stored payload.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, cache.ErrEmptyKey
	}
	start := time.Now()
	b, err := c.rdb.HGet(ctx, key, fieldValue).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
		return nil, false, nil
	}
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("redis HGET %q: %w", key, err)
	}
	return b, true, nil
}

func (c *Client) GetWithMetadata(ctx context.Context, key string) (cache.Entry, bool, error) {
	if key == "" {
		return cache.Entry{}, false, cache.ErrEmptyKey
	}
	start := time.Now()
	vals, err := c.rdb.HMGet(ctx, key, fieldValue, fieldTS).Result()
	observability.ObserveCacheOp("get_meta", err, time.Since(start).Seconds())
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redis HMGET %q: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return cache.Entry{}, false, nil
	}

	e := cache.Entry{Value: toBytes(vals[0])}
	if vals[1] != nil {
		// unparseable timestamps read as 0, which every freshness check treats as stale
		if ts, perr := strconv.ParseInt(string(toBytes(vals[1])), 10, 64); perr == nil {
			e.Metadata.Timestamp = ts
		}
	}
	return e, true, nil
}

// Put overwrites the entry wholesale in one MULTI block.
func (c *Client) Put(ctx context.Context, key string, val []byte, opts cache.PutOptions) error {
	if key == "" {
		return cache.ErrEmptyKey
	}
	start := time.Now()
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, fieldValue, val, fieldTS, strconv.FormatInt(opts.Metadata.Timestamp, 10))
		if opts.TTL > 0 {
			p.Expire(ctx, key, opts.TTL)
		}
		return nil
	})
	observability.ObserveCacheOp("put", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis PUT %q: %w", key, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func toBytes(v any) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return fmt.Append(nil, t)
	}
}
