// Package cache defines the key-value contract the gateway caches canonical results in.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyKey = errors.New("cache: empty key")

// Metadata travels with a stored value.
type Metadata struct {
	// Timestamp is the write time in epoch millis.
	Timestamp int64 `json:"timestamp"`
}

type Entry struct {
	Value    []byte
	Metadata Metadata
}

type PutOptions struct {
	// TTL is the physical expiry enforced by the store; zero means no expiry.
	TTL      time.Duration
	Metadata Metadata
}

// Store is a versioned key-value cache. Misses are (zero, false, nil);
// errors are reserved for an unavailable store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	GetWithMetadata(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, value []byte, opts PutOptions) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
