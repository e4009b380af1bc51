// Package foursquare adapts the Foursquare Places API v3.
package foursquare

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers/hours"
)

const (
	Name = "foursquare"

	fields      = "fsq_id,name,geocodes,location,categories,rating,stats,hours,photos,price,tel,website,timezone"
	searchLimit = 50
)

// Foursquare taxonomy ids; 13000 is "Dining and Drinking".
var categories = providers.NewTypeMap("13000", map[string]string{
	"restaurant":  "13065",
	"bar":         "13003",
	"night_club":  "10032",
	"cafe":        "13032",
	"coffee":      "13035",
	"bakery":      "13002",
	"hotel":       "19014",
	"lodging":     "19014",
	"gas":         "19007",
	"gas_station": "19007",
	"grocery":     "17069",
	"supermarket": "17069",
	"pharmacy":    "17035",
	"gym":         "18021",
	"park":        "16032",
	"museum":      "10027",
})

type Adapter struct {
	base   string
	key    string
	fetch  *providers.Fetcher
	now    func() time.Time
	defLoc *time.Location
}

var _ providers.Adapter = (*Adapter)(nil)

type Option func(*Adapter)

func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

func New(client *http.Client, baseURL, apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		base:   strings.TrimRight(baseURL, "/"),
		key:    apiKey,
		fetch:  providers.NewFetcher(client, Name),
		now:    time.Now,
		defLoc: time.UTC,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) header(override string) http.Header {
	k := a.key
	if override != "" {
		k = override
	}
	h := http.Header{}
	h.Set("Authorization", k)
	return h
}

func (a *Adapter) Search(ctx context.Context, q model.QuantizedQuery, placeType, apiKey string, keywords []string) ([]byte, error) {
	v := url.Values{}
	v.Set("ll", q.String())
	v.Set("radius", strconv.Itoa(q.GridRadius))
	v.Set("categories", categories.Resolve(placeType))
	if len(keywords) > 0 {
		v.Set("query", strings.Join(keywords, " "))
	}
	v.Set("limit", strconv.Itoa(searchLimit))
	v.Set("fields", fields)
	return a.fetch.GetJSON(ctx, "nearby", a.base+"/search", v, a.header(apiKey))
}

func (a *Adapter) Details(ctx context.Context, placeID, apiKey string) ([]byte, error) {
	v := url.Values{}
	v.Set("fields", fields)
	return a.fetch.GetJSON(ctx, "details", a.base+"/"+url.PathEscape(placeID), v, a.header(apiKey))
}

func (a *Adapter) NormalizeSearchResults(raw []byte) []model.Place {
	out := []model.Place{}
	if !gjson.ValidBytes(raw) {
		return out
	}
	now := a.now()
	for _, r := range providers.Objects(gjson.GetBytes(raw, "results")) {
		if p, ok := a.place(r, now); ok {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeDetails reads a bare place object, the shape of the details endpoint.
func (a *Adapter) NormalizeDetails(raw []byte) *model.Place {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil
	}
	p, ok := a.place(r, a.now())
	if !ok {
		return nil
	}
	return &p
}

func (a *Adapter) place(r gjson.Result, now time.Time) (model.Place, bool) {
	id := providers.Str(r.Get("fsq_id"))
	if id == "" {
		return model.Place{}, false
	}
	lat, _ := providers.Coord(r.Get("geocodes.main.latitude"))
	lng, _ := providers.Coord(r.Get("geocodes.main.longitude"))

	p := model.Place{
		ProviderPlaceID:  id,
		Name:             providers.Str(r.Get("name")),
		Location:         model.LatLng{Lat: lat, Lng: lng},
		FormattedAddress: providers.Str(r.Get("location.formatted_address")),
		Categories:       providers.Strings(r.Get("categories.#.name")),
		Rating:           rating(r.Get("rating")),
		RatingCount:      providers.OptInt(r.Get("stats.total_ratings")),
		OpeningHours:     a.openingHours(r, now),
		Photos:           photos(r.Get("photos")),
		PriceLevel:       providers.OptInt(r.Get("price")),
		Phone:            providers.OptString(r.Get("tel")),
		Website:          providers.OptString(r.Get("website")),
	}
	return providers.Finish(p), true
}

// rating scales the 0-10 score onto the 0-5 range used elsewhere.
func rating(r gjson.Result) *float64 {
	v := providers.OptFloat(r)
	if v == nil {
		return nil
	}
	s := math.Round(*v/2*10) / 10
	return &s
}

func (a *Adapter) openingHours(r gjson.Result, now time.Time) *model.OpeningHours {
	h := r.Get("hours")
	if !h.IsObject() {
		return nil
	}
	out := &model.OpeningHours{WeekdayText: displayLines(h.Get("display"))}
	if reg := h.Get("regular"); reg.Exists() {
		loc := hours.Location(providers.Str(r.Get("timezone")), a.defLoc)
		out.OpenNow = hours.Evaluate(Periods(reg), now, loc)
	} else if on := h.Get("open_now"); on.IsBool() {
		v := on.Bool()
		out.OpenNow = &v
	}
	return out
}

// Periods converts Foursquare regular hours: day 1=Monday..7=Sunday, times
// "HHMM" with a leading "+" on closes that fall on the next day.
func Periods(r gjson.Result) []hours.Period {
	if !r.IsArray() {
		return []hours.Period{{Invalid: true}}
	}
	var out []hours.Period
	for _, e := range r.Array() {
		d := e.Get("day")
		open := providers.Str(e.Get("open"))
		cl := providers.Str(e.Get("close"))
		if d.Type != gjson.Number || d.Int() < 1 || d.Int() > 7 || open == "" || cl == "" {
			out = append(out, hours.Period{Invalid: true})
			continue
		}
		day := int(d.Int()) % 7
		closeDay := day
		if strings.HasPrefix(cl, "+") {
			cl = cl[1:]
			closeDay = (day + 1) % 7
		}
		out = append(out, hours.Period{OpenDay: day, OpenTime: open, CloseDay: closeDay, CloseTime: cl})
	}
	return out
}

func displayLines(r gjson.Result) []string {
	s := providers.Str(r)
	if s == "" {
		return []string{}
	}
	var out []string
	for part := range strings.SplitSeq(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func photos(r gjson.Result) []model.PhotoRef {
	out := []model.PhotoRef{}
	for _, ph := range providers.Objects(r) {
		prefix, suffix := providers.Str(ph.Get("prefix")), providers.Str(ph.Get("suffix"))
		if prefix == "" || suffix == "" {
			continue
		}
		out = append(out, model.PhotoRef{
			Reference:    prefix + "original" + suffix,
			Width:        providers.OptInt(ph.Get("width")),
			Height:       providers.OptInt(ph.Get("height")),
			Attributions: []string{},
		})
	}
	return out
}
