// Package local serves places from a self-hosted Elasticsearch index.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/olivere/elastic/v7"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/errs"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers/hours"
)

const (
	Name        = "local"
	searchLimit = 50
)

// The index stores the generic vocabulary directly; unmapped types search
// every category.
var categories = providers.NewTypeMap("", map[string]string{
	"restaurant": "restaurant",
	"bar":        "bar",
	"cafe":       "cafe",
	"coffee":     "cafe",
	"bakery":     "bakery",
	"hotel":      "lodging",
	"lodging":    "lodging",
	"grocery":    "supermarket",
	"pharmacy":   "pharmacy",
	"park":       "park",
	"museum":     "museum",
})

const mapping = `{
  "mappings": {
    "properties": {
      "name":       {"type": "text"},
      "location":   {"type": "geo_point"},
      "address":    {"type": "text"},
      "categories": {"type": "keyword"},
      "rating":     {"type": "float"},
      "timezone":   {"type": "keyword"}
    }
  }
}`

// Doc is the indexed document. OpeningHours uses Google-shaped periods.
type Doc struct {
	Name         string           `json:"name"`
	Location     elastic.GeoPoint `json:"location"`
	Address      string           `json:"address,omitempty"`
	Categories   []string         `json:"categories,omitempty"`
	Rating       *float64         `json:"rating,omitempty"`
	RatingCount  *int             `json:"rating_count,omitempty"`
	PriceLevel   *int             `json:"price_level,omitempty"`
	Phone        string           `json:"phone,omitempty"`
	Website      string           `json:"website,omitempty"`
	Timezone     string           `json:"timezone,omitempty"`
	OpeningHours json.RawMessage  `json:"opening_hours,omitempty"`
	Photos       json.RawMessage  `json:"photos,omitempty"`
}

type Config struct {
	URL      string
	Index    string
	Username string
	Password string
}

type Adapter struct {
	es    *elastic.Client
	index string
	now   func() time.Time
}

var _ providers.Adapter = (*Adapter)(nil)

type Option func(*Adapter)

func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

func New(client *http.Client, cfg Config, opts ...Option) (*Adapter, error) {
	eopts := []elastic.ClientOptionFunc{
		elastic.SetURL(cfg.URL),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	}
	if client != nil {
		eopts = append(eopts, elastic.SetHttpClient(client))
	}
	if cfg.Username != "" {
		eopts = append(eopts, elastic.SetBasicAuth(cfg.Username, cfg.Password))
	}
	es, err := elastic.NewClient(eopts...)
	if err != nil {
		return nil, fmt.Errorf("elastic client: %w", err)
	}
	idx := cfg.Index
	if idx == "" {
		idx = "places"
	}
	a := &Adapter{es: es, index: idx, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

func (a *Adapter) Name() string { return Name }

// EnsureIndex creates the index with its geo_point mapping when missing.
func (a *Adapter) EnsureIndex(ctx context.Context) error {
	exists, err := a.es.IndexExists(a.index).Do(ctx)
	if err != nil {
		return fmt.Errorf("index exists %q: %w", a.index, err)
	}
	if exists {
		return nil
	}
	res, err := a.es.CreateIndex(a.index).BodyString(mapping).Do(ctx)
	if err != nil {
		return fmt.Errorf("create index %q: %w", a.index, err)
	}
	if !res.Acknowledged {
		return fmt.Errorf("create index %q not acknowledged", a.index)
	}
	return nil
}

// Load bulk-indexes docs keyed by id.
func (a *Adapter) Load(ctx context.Context, docs map[string]Doc) error {
	if len(docs) == 0 {
		return nil
	}
	bulk := a.es.Bulk().Index(a.index)
	for id, d := range docs {
		bulk.Add(elastic.NewBulkIndexRequest().Id(id).Doc(d))
	}
	res, err := bulk.Do(ctx)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("bulk index: %d of %d docs failed", len(failed), len(docs))
	}
	return nil
}

// The index has no API key concept; apiKey is ignored.
func (a *Adapter) Search(ctx context.Context, q model.QuantizedQuery, placeType, _ string, keywords []string) ([]byte, error) {
	bq := elastic.NewBoolQuery().Filter(
		elastic.NewGeoDistanceQuery("location").
			Point(q.GridLat, q.GridLng).
			Distance(strconv.Itoa(q.GridRadius) + "m"),
	)
	if cat := categories.Resolve(placeType); cat != "" {
		bq = bq.Filter(elastic.NewTermQuery("categories", cat))
	}
	if len(keywords) > 0 {
		bq = bq.Must(elastic.NewMultiMatchQuery(strings.Join(keywords, " "), "name", "categories", "address"))
	}

	start := time.Now()
	res, err := a.es.Search(a.index).
		Query(bq).
		SortBy(elastic.NewGeoDistanceSort("location").
			Point(q.GridLat, q.GridLng).
			Asc().
			Unit("m").
			DistanceType("arc")).
		Size(searchLimit).
		Do(ctx)
	observability.ObserveUpstreamLatency(Name, "nearby", time.Since(start).Seconds())
	if err != nil {
		observability.IncUpstreamError(Name, "nearby")
		return nil, errs.Upstream("local.nearby", err)
	}

	hits := []hit{}
	if res.Hits != nil {
		for _, h := range res.Hits.Hits {
			hits = append(hits, hit{ID: h.Id, Source: h.Source})
		}
	}
	return marshal("local.nearby", struct {
		Results []hit `json:"results"`
	}{hits})
}

func (a *Adapter) Details(ctx context.Context, placeID, _ string) ([]byte, error) {
	start := time.Now()
	res, err := a.es.Get().Index(a.index).Id(placeID).Do(ctx)
	observability.ObserveUpstreamLatency(Name, "details", time.Since(start).Seconds())
	if err != nil && !elastic.IsNotFound(err) {
		observability.IncUpstreamError(Name, "details")
		return nil, errs.Upstream("local.details", err)
	}

	var out struct {
		Result *hit `json:"result"`
	}
	if err == nil && res != nil && res.Found {
		out.Result = &hit{ID: res.Id, Source: res.Source}
	}
	return marshal("local.details", out)
}

type hit struct {
	ID     string          `json:"id"`
	Source json.RawMessage `json:"source"`
}

func marshal(op string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Upstream(op, errors.Join(providers.ErrMalformed, err))
	}
	return b, nil
}

func (a *Adapter) NormalizeSearchResults(raw []byte) []model.Place {
	out := []model.Place{}
	if !gjson.ValidBytes(raw) {
		return out
	}
	now := a.now()
	for _, r := range providers.Objects(gjson.GetBytes(raw, "results")) {
		if p, ok := place(r, now); ok {
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
	p, ok := place(r, a.now())
	if !ok {
		return nil
	}
	return &p
}

func place(r gjson.Result, now time.Time) (model.Place, bool) {
	id := providers.Str(r.Get("id"))
	src := r.Get("source")
	if id == "" || !src.IsObject() {
		return model.Place{}, false
	}
	lat, _ := providers.Coord(src.Get("location.lat"))
	lng, _ := providers.Coord(src.Get("location.lon"))

	p := model.Place{
		ProviderPlaceID:  id,
		Name:             providers.Str(src.Get("name")),
		Location:         model.LatLng{Lat: lat, Lng: lng},
		FormattedAddress: providers.Str(src.Get("address")),
		Categories:       providers.Strings(src.Get("categories")),
		Rating:           providers.OptFloat(src.Get("rating")),
		RatingCount:      providers.OptInt(src.Get("rating_count")),
		OpeningHours:     openingHours(src, now),
		Photos:           photos(src.Get("photos")),
		PriceLevel:       providers.OptInt(src.Get("price_level")),
		Phone:            providers.OptString(src.Get("phone")),
		Website:          providers.OptString(src.Get("website")),
	}
	return providers.Finish(p), true
}

func openingHours(src gjson.Result, now time.Time) *model.OpeningHours {
	oh := src.Get("opening_hours")
	if !oh.IsObject() {
		return nil
	}
	loc := hours.Location(providers.Str(src.Get("timezone")), time.UTC)
	return &model.OpeningHours{
		OpenNow:     hours.Evaluate(hours.DayTimePeriods(oh.Get("periods")), now, loc),
		WeekdayText: providers.Strings(oh.Get("weekday_text")),
	}
}

func photos(r gjson.Result) []model.PhotoRef {
	out := []model.PhotoRef{}
	for _, ph := range providers.Objects(r) {
		ref := providers.Str(ph.Get("reference"))
		if ref == "" {
			continue
		}
		out = append(out, model.PhotoRef{
			Reference:    ref,
			Width:        providers.OptInt(ph.Get("width")),
			Height:       providers.OptInt(ph.Get("height")),
			Attributions: providers.Strings(ph.Get("attributions")),
		})
	}
	return out
}
