// Package hours evaluates weekly opening schedules against a wall clock.
package hours

import (
	"time"

	"github.com/tidwall/gjson"
)

const (
	minutesPerDay  = 24 * 60
	minutesPerWeek = 7 * minutesPerDay
)

// Period is one open interval. Days are 0=Sunday..6=Saturday and times are
// "HHMM" local wall-clock strings. Close is empty when the period never closes.
type Period struct {
	OpenDay   int
	OpenTime  string
	CloseDay  int
	CloseTime string
	// Invalid marks a source entry that could not be read at all.
	Invalid bool
}

func (p Period) hasClose() bool { return p.CloseTime != "" }

// Evaluate reports whether now falls inside any period, with now converted
// to loc first. It returns nil when the schedule is empty or malformed.
func Evaluate(periods []Period, now time.Time, loc *time.Location) *bool {
	if len(periods) == 0 {
		return nil
	}
	if loc != nil {
		now = now.In(loc)
	}
	m := int(now.Weekday())*minutesPerDay + now.Hour()*60 + now.Minute()

	for _, p := range periods {
		if p.Invalid {
			return nil
		}
	}

	// a lone period without a close time means open around the clock
	if len(periods) == 1 && !periods[0].hasClose() {
		if _, ok := weekMinute(periods[0].OpenDay, periods[0].OpenTime); !ok {
			return nil
		}
		return ptr(true)
	}

	open := false
	for _, p := range periods {
		if !p.hasClose() {
			return nil
		}
		start, ok := weekMinute(p.OpenDay, p.OpenTime)
		if !ok {
			return nil
		}
		end, ok := weekMinute(p.CloseDay, p.CloseTime)
		if !ok {
			return nil
		}
		if end <= start {
			end += minutesPerWeek
		}
		if (m >= start && m < end) || (m+minutesPerWeek >= start && m+minutesPerWeek < end) {
			open = true
		}
	}
	return ptr(open)
}

// weekMinute converts day + "HHMM" to minutes since Sunday 00:00.
// "2400" is accepted as the end of the day.
func weekMinute(day int, hhmm string) (int, bool) {
	if day < 0 || day > 6 || len(hhmm) != 4 {
		return 0, false
	}
	for i := range 4 {
		if hhmm[i] < '0' || hhmm[i] > '9' {
			return 0, false
		}
	}
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	mi := int(hhmm[2]-'0')*10 + int(hhmm[3]-'0')
	if mi > 59 || h > 24 || (h == 24 && mi != 0) {
		return 0, false
	}
	return day*minutesPerDay + h*60 + mi, true
}

// Location resolves an IANA zone name, falling back to def.
func Location(name string, def *time.Location) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return def
}

// FixedOffset returns a zone offset by the given minutes east of UTC.
func FixedOffset(minutes int) *time.Location {
	return time.FixedZone("", minutes*60)
}

func ptr(b bool) *bool { return &b }

// DayTimePeriods reads [{open:{day,time}, close:{day,time}}] arrays, the
// shape Google and the local index use.
// Entries of the wrong shape are marked invalid so evaluation yields nil.
func DayTimePeriods(r gjson.Result) []Period {
	if !r.IsArray() {
		return []Period{{Invalid: true}}
	}
	var out []Period
	for _, e := range r.Array() {
		o := e.Get("open")
		if !o.IsObject() || o.Get("day").Type != gjson.Number {
			out = append(out, Period{Invalid: true})
			continue
		}
		p := Period{OpenDay: int(o.Get("day").Int()), OpenTime: o.Get("time").String()}
		if c := e.Get("close"); c.Exists() {
			if !c.IsObject() || c.Get("day").Type != gjson.Number || c.Get("time").Type != gjson.String {
				p.Invalid = true
			} else {
				p.CloseDay = int(c.Get("day").Int())
				p.CloseTime = c.Get("time").Str
			}
		}
		out = append(out, p)
	}
	return out
}
