package hours

import (
	"testing"
	"time"
)

// 2025-03-05 is a Wednesday
func wed(h, m int) time.Time { return time.Date(2025, 3, 5, h, m, 0, 0, time.UTC) }

func weekdays(open, close string) []Period {
	var ps []Period
	for d := 1; d <= 5; d++ {
		ps = append(ps, Period{OpenDay: d, OpenTime: open, CloseDay: d, CloseTime: close})
	}
	return ps
}

func TestEvaluate_WithinAndOutside(t *testing.T) {
	ps := weekdays("0900", "1700")
	cases := []struct {
		at   time.Time
		want bool
	}{
		{wed(8, 59), false},
		{wed(9, 0), true},
		{wed(16, 59), true},
		{wed(17, 0), false},
		{time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC), false}, // Saturday
	}
	for _, c := range cases {
		got := Evaluate(ps, c.at, time.UTC)
		if got == nil || *got != c.want {
			t.Fatalf("at %v got=%v want %v", c.at, got, c.want)
		}
	}
}

func TestEvaluate_OvernightAndWeekWrap(t *testing.T) {
	// Friday 18:00 to Saturday 02:00, and Saturday 22:00 to Sunday 03:00
	ps := []Period{
		{OpenDay: 5, OpenTime: "1800", CloseDay: 6, CloseTime: "0200"},
		{OpenDay: 6, OpenTime: "2200", CloseDay: 0, CloseTime: "0300"},
	}
	sat1am := time.Date(2025, 3, 8, 1, 0, 0, 0, time.UTC)
	sun2am := time.Date(2025, 3, 9, 2, 0, 0, 0, time.UTC)
	sun4am := time.Date(2025, 3, 9, 4, 0, 0, 0, time.UTC)

	if got := Evaluate(ps, sat1am, time.UTC); got == nil || !*got {
		t.Fatalf("saturday 01:00 should be open")
	}
	if got := Evaluate(ps, sun2am, time.UTC); got == nil || !*got {
		t.Fatalf("sunday 02:00 should be open across the week boundary")
	}
	if got := Evaluate(ps, sun4am, time.UTC); got == nil || *got {
		t.Fatalf("sunday 04:00 should be closed")
	}
}

func TestEvaluate_AlwaysOpen(t *testing.T) {
	got := Evaluate([]Period{{OpenDay: 0, OpenTime: "0000"}}, wed(3, 0), time.UTC)
	if got == nil || !*got {
		t.Fatalf("single open-only period means always open")
	}
}

func TestEvaluate_MalformedIsNil(t *testing.T) {
	bad := [][]Period{
		nil,
		{{OpenDay: 9, OpenTime: "0900", CloseDay: 9, CloseTime: "1700"}},
		{{OpenDay: 1, OpenTime: "9am", CloseDay: 1, CloseTime: "1700"}},
		{{OpenDay: 1, OpenTime: "0960", CloseDay: 1, CloseTime: "1700"}},
		{{OpenDay: 1, OpenTime: "0900"}, {OpenDay: 2, OpenTime: "0900", CloseDay: 2, CloseTime: "1700"}},
	}
	for i, ps := range bad {
		if got := Evaluate(ps, wed(10, 0), time.UTC); got != nil {
			t.Fatalf("case %d: want nil, got %v", i, *got)
		}
	}
}

func TestEvaluate_UsesLocation(t *testing.T) {
	ps := weekdays("0900", "1700")
	// 15:00 UTC is 10:00 at UTC-5
	at := wed(15, 0)
	if got := Evaluate(ps, at, FixedOffset(-5*60)); got == nil || !*got {
		t.Fatalf("expected open in UTC-5")
	}
	// 15:00 UTC is 00:00 Thursday at UTC+9
	if got := Evaluate(ps, at, FixedOffset(9*60)); got == nil || *got {
		t.Fatalf("expected closed in UTC+9")
	}
}

func TestLocation_Fallback(t *testing.T) {
	if Location("Not/AZone", time.UTC) != time.UTC {
		t.Fatalf("unknown zone should fall back")
	}
}

func TestEvaluate_InvalidEntryPoisonsSchedule(t *testing.T) {
	ps := append(weekdays("0900", "1700"), Period{Invalid: true})
	if got := Evaluate(ps, wed(10, 0), time.UTC); got != nil {
		t.Fatalf("want nil, got %v", *got)
	}
}
