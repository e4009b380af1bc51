package policy

import (
	"testing"
	"time"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
)

func ptr(v int64) *int64 { return &v }

func TestFreshness_Scenarios(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry{WrittenAtEpochMillis: t0.UnixMilli()}
	ttl := 604800 * time.Second

	p := WithClock(func() time.Time { return t0.Add(1000 * time.Second) })

	if !p.IsEntryFresh(entry, model.RequestFlags{}, ttl) {
		t.Fatalf("entry within ttl should be a hit")
	}

	bypass := model.RequestFlags{NoCache: true}
	if p.ShouldUseCache(bypass) {
		t.Fatalf("no-cache must skip the cache")
	}
	if p.IsEntryFresh(entry, bypass, ttl) {
		t.Fatalf("no-cache must miss regardless of freshness")
	}

	reset := model.RequestFlags{ResetBefore: ptr(t0.Add(500 * time.Second).UnixMilli())}
	if p.IsEntryFresh(entry, reset, ttl) {
		t.Fatalf("entry written before the reset point must be stale")
	}

	later := Entry{WrittenAtEpochMillis: t0.Add(600 * time.Second).UnixMilli()}
	if !p.IsEntryFresh(later, reset, ttl) {
		t.Fatalf("entry written after the reset point should be fresh")
	}
}

func TestFreshness_ResetOverridesTTL(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	// far past ttl, but newer than the reset point
	p := WithClock(func() time.Time { return t0.Add(30 * 24 * time.Hour) })
	entry := Entry{WrittenAtEpochMillis: t0.UnixMilli()}
	flags := model.RequestFlags{ResetBefore: ptr(t0.Add(-time.Second).UnixMilli())}
	if !p.IsEntryFresh(entry, flags, time.Minute) {
		t.Fatalf("reset override should take precedence over ttl")
	}
	// equal to the reset point is stale
	flags.ResetBefore = ptr(t0.UnixMilli())
	if p.IsEntryFresh(entry, flags, time.Hour) {
		t.Fatalf("entry written exactly at reset point must be stale")
	}
}

func TestFreshness_TTLBoundary(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry{WrittenAtEpochMillis: t0.UnixMilli()}

	at := WithClock(func() time.Time { return t0.Add(time.Minute) })
	if at.IsEntryFresh(entry, model.RequestFlags{}, time.Minute) {
		t.Fatalf("age == ttl must be stale")
	}
	before := WithClock(func() time.Time { return t0.Add(time.Minute - time.Millisecond) })
	if !before.IsEntryFresh(entry, model.RequestFlags{}, time.Minute) {
		t.Fatalf("age just below ttl must be fresh")
	}
	if before.IsEntryFresh(entry, model.RequestFlags{}, 0) {
		t.Fatalf("zero ttl disables freshness")
	}
}

func TestDefaultTTLs_ByEnvironmentAndKind(t *testing.T) {
	prod := DefaultTTLs("production")
	dev := DefaultTTLs("development")

	if prod.For(model.KindNearby) != 7*24*time.Hour {
		t.Fatalf("prod nearby ttl=%v", prod.Nearby)
	}
	if prod.For(model.KindDetails) <= prod.For(model.KindNearby) {
		t.Fatalf("details should be cached longer than nearby lists")
	}
	if dev.Nearby >= prod.Nearby || dev.Details >= prod.Details {
		t.Fatalf("dev ttls should be shorter than prod: %+v vs %+v", dev, prod)
	}
}
