package invalidation

import (
	"testing"
	"time"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func TestEvent_Validate_HappyPath(t *testing.T) {
	for _, op := range []string{OpUpdate, OpDelete} {
		ev := Event{Version: 1, Op: op, Provider: "google", PlaceID: "ChIJ123", TS: mustTS()}
		if err := ev.Validate(); err != nil {
			t.Fatalf("%s: unexpected: %v", op, err)
		}
	}
}

func TestEvent_Validate_Rejects(t *testing.T) {
	base := Event{Version: 1, Op: OpUpdate, Provider: "google", PlaceID: "ChIJ123", TS: mustTS()}

	cases := map[string]func(*Event){
		"version":   func(e *Event) { e.Version = 2 },
		"op":        func(e *Event) { e.Op = "insert" },
		"provider":  func(e *Event) { e.Provider = " " },
		"place id":  func(e *Event) { e.PlaceID = "" },
		"timestamp": func(e *Event) { e.TS = time.Time{} },
		"location":  func(e *Event) { e.Location = &Point{Lat: 91, Lng: 0} },
	}
	for name, mutate := range cases {
		ev := base
		mutate(&ev)
		if err := ev.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestEvent_DedupeKey(t *testing.T) {
	a := Event{Provider: "Google", PlaceID: " abc "}
	b := Event{Provider: "google", PlaceID: "abc"}
	if a.DedupeKey() != b.DedupeKey() {
		t.Fatalf("%q != %q", a.DedupeKey(), b.DedupeKey())
	}
}
