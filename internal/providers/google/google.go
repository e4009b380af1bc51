// Package google adapts the Google Places web service (Nearby Search and
// Place Details JSON endpoints).
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/errs"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers/hours"
)

const Name = "google"

const detailFields = "place_id,name,geometry/location,formatted_address,vicinity,types,rating," +
	"user_ratings_total,opening_hours,utc_offset,photos,price_level," +
	"formatted_phone_number,international_phone_number,website"

var types = providers.NewTypeMap("point_of_interest", map[string]string{
	"restaurant":  "restaurant",
	"bar":         "bar",
	"cafe":        "cafe",
	"coffee":      "cafe",
	"bakery":      "bakery",
	"night_club":  "night_club",
	"hotel":       "lodging",
	"lodging":     "lodging",
	"gas":         "gas_station",
	"gas_station": "gas_station",
	"grocery":     "supermarket",
	"supermarket": "supermarket",
	"pharmacy":    "pharmacy",
	"gym":         "gym",
	"park":        "park",
	"museum":      "museum",
	"atm":         "atm",
	"bank":        "bank",
	"hospital":    "hospital",
	"parking":     "parking",
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

// WithLocation sets the zone used when a payload carries no utc_offset.
func WithLocation(loc *time.Location) Option { return func(a *Adapter) { a.defLoc = loc } }

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

func (a *Adapter) apiKey(override string) string {
	if override != "" {
		return override
	}
	return a.key
}

func (a *Adapter) Search(ctx context.Context, q model.QuantizedQuery, placeType, apiKey string, keywords []string) ([]byte, error) {
	v := url.Values{}
	v.Set("location", q.String())
	v.Set("radius", strconv.Itoa(q.GridRadius))
	v.Set("type", types.Resolve(placeType))
	if len(keywords) > 0 {
		v.Set("keyword", strings.Join(keywords, " "))
	}
	v.Set("key", a.apiKey(apiKey))

	b, err := a.fetch.GetJSON(ctx, "nearby", a.base+"/nearbysearch/json", v, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(b); err != nil {
		return nil, errs.Upstream("google.nearby", err)
	}
	return b, nil
}

func (a *Adapter) Details(ctx context.Context, placeID, apiKey string) ([]byte, error) {
	v := url.Values{}
	v.Set("place_id", placeID)
	v.Set("fields", detailFields)
	v.Set("key", a.apiKey(apiKey))

	b, err := a.fetch.GetJSON(ctx, "details", a.base+"/details/json", v, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(b); err != nil {
		return nil, errs.Upstream("google.details", err)
	}
	return b, nil
}

// checkStatus maps the in-body status onto success or failure. NOT_FOUND
// and ZERO_RESULTS are empty successes.
func checkStatus(b []byte) error {
	st := gjson.GetBytes(b, "status")
	if st.Type != gjson.String {
		return errors.New("missing status")
	}
	switch st.Str {
	case "OK", "ZERO_RESULTS", "NOT_FOUND":
		return nil
	}
	msg := gjson.GetBytes(b, "error_message").String()
	return fmt.Errorf("status %s: %s", st.Str, msg)
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

func (a *Adapter) NormalizeDetails(raw []byte) *model.Place {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	r := gjson.GetBytes(raw, "result")
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
	id := providers.Str(r.Get("place_id"))
	if id == "" {
		return model.Place{}, false
	}
	lat, _ := providers.Coord(r.Get("geometry.location.lat"))
	lng, _ := providers.Coord(r.Get("geometry.location.lng"))

	addr := providers.Str(r.Get("formatted_address"))
	if addr == "" {
		addr = providers.Str(r.Get("vicinity"))
	}
	phone := providers.OptString(r.Get("international_phone_number"))
	if phone == nil {
		phone = providers.OptString(r.Get("formatted_phone_number"))
	}

	p := model.Place{
		ProviderPlaceID:  id,
		Name:             providers.Str(r.Get("name")),
		Location:         model.LatLng{Lat: lat, Lng: lng},
		FormattedAddress: addr,
		Categories:       providers.Strings(r.Get("types")),
		Rating:           providers.OptFloat(r.Get("rating")),
		RatingCount:      providers.OptInt(r.Get("user_ratings_total")),
		OpeningHours:     a.openingHours(r, now),
		Photos:           photos(r.Get("photos")),
		PriceLevel:       providers.OptInt(r.Get("price_level")),
		Phone:            phone,
		Website:          providers.OptString(r.Get("website")),
	}
	return providers.Finish(p), true
}

func (a *Adapter) openingHours(r gjson.Result, now time.Time) *model.OpeningHours {
	oh := r.Get("opening_hours")
	if !oh.IsObject() {
		return nil
	}
	loc := a.defLoc
	if off := r.Get("utc_offset"); off.Type == gjson.Number {
		loc = hours.FixedOffset(int(off.Int()))
	}

	out := &model.OpeningHours{WeekdayText: providers.Strings(oh.Get("weekday_text"))}
	if ps := oh.Get("periods"); ps.Exists() {
		out.OpenNow = hours.Evaluate(hours.DayTimePeriods(ps), now, loc)
	} else if on := oh.Get("open_now"); on.IsBool() {
		v := on.Bool()
		out.OpenNow = &v
	}
	return out
}

func photos(r gjson.Result) []model.PhotoRef {
	out := []model.PhotoRef{}
	for _, ph := range providers.Objects(r) {
		ref := providers.Str(ph.Get("photo_reference"))
		if ref == "" {
			continue
		}
		out = append(out, model.PhotoRef{
			Reference:    ref,
			Width:        providers.OptInt(ph.Get("width")),
			Height:       providers.OptInt(ph.Get("height")),
			Attributions: providers.Strings(ph.Get("html_attributions")),
		})
	}
	return out
}
