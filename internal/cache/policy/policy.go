// Package policy decides whether a stored entry may be served.
//
// The decision is advisory on top of the store's own expiry: an entry the store
// still holds can be judged stale here, in which case the caller refetches and
// overwrites it.
package policy

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
)

// Entry is the part of a stored record the policy looks at.
type Entry struct {
	WrittenAtEpochMillis int64
}

type Policy struct {
	now func() time.Time
}

func New() Policy { return Policy{now: time.Now} }

// WithClock returns a policy evaluating freshness against now().
func WithClock(now func() time.Time) Policy {
	if now == nil {
		now = time.Now
	}
	return Policy{now: now}
}

// ShouldUseCache is false when the request asks to bypass the cache.
func (p Policy) ShouldUseCache(flags model.RequestFlags) bool {
	return !flags.NoCache
}

// IsEntryFresh applies bypass, then the epoch reset override, then the TTL.
func (p Policy) IsEntryFresh(e Entry, flags model.RequestFlags, ttl time.Duration) bool {
	if flags.NoCache {
		return false
	}
	if flags.ResetBefore != nil {
		return e.WrittenAtEpochMillis > *flags.ResetBefore
	}
	if ttl <= 0 {
		return false
	}
	now := p.clock().UnixMilli()
	return now-e.WrittenAtEpochMillis < ttl.Milliseconds()
}

func (p Policy) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// TTLs holds the freshness window per result kind.
type TTLs struct {
	Nearby  time.Duration
	Details time.Duration
}

// DefaultTTLs returns week-scale windows in production and minutes elsewhere.
// Details outlive nearby lists since single-place metadata changes less often.
func DefaultTTLs(env string) TTLs {
	if strings.EqualFold(strings.TrimSpace(env), EnvProduction) {
		return TTLs{Nearby: 7 * 24 * time.Hour, Details: 14 * 24 * time.Hour}
	}
	return TTLs{Nearby: 5 * time.Minute, Details: 15 * time.Minute}
}

func (t TTLs) For(k model.Kind) time.Duration {
	if k == model.KindDetails {
		return t.Details
	}
	return t.Nearby
}
