package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/errs"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
)

const nearbyPayload = `{
  "status": "OK",
  "results": [
    {
      "place_id": "g1",
      "name": "Bern's Steak House",
      "geometry": {"location": {"lat": 27.9334, "lng": -82.4836}},
      "vicinity": "1208 S Howard Ave, Tampa",
      "types": ["restaurant", "food", "point_of_interest"],
      "rating": 4.6,
      "user_ratings_total": 9120,
      "price_level": 4,
      "opening_hours": {"open_now": true},
      "photos": [{"photo_reference": "ph1", "width": 800, "height": 600, "html_attributions": ["<a>x</a>"]}]
    },
    {
      "place_id": "g2",
      "name": "Columbia",
      "geometry": {"location": {"lat": 27.96, "lng": -82.43}}
    },
    "not-an-object",
    {"name": "no id"}
  ]
}`

// Wednesday 2025-03-05 12:00 UTC
var fixedNow = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func newTestAdapter(srvURL string) *Adapter {
	return New(http.DefaultClient, srvURL, "server-key", WithClock(func() time.Time { return fixedNow }))
}

func TestSearch_ShapesRequest(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(nearbyPayload))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	q := model.QuantizedQuery{GridLat: 27.951, GridLng: -82.457, GridRadius: 800}
	if _, err := a.Search(context.Background(), q, "coffee", "", []string{"espresso", "wifi"}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got.URL.Path != "/nearbysearch/json" {
		t.Fatalf("path=%s", got.URL.Path)
	}
	qs := got.URL.Query()
	if qs.Get("location") != "27.95100,-82.45700" || qs.Get("radius") != "800" {
		t.Fatalf("location/radius=%q/%q", qs.Get("location"), qs.Get("radius"))
	}
	if qs.Get("type") != "cafe" || qs.Get("keyword") != "espresso wifi" || qs.Get("key") != "server-key" {
		t.Fatalf("query=%v", qs)
	}
}

func TestSearch_UnknownTypeFallsBackToDefault(t *testing.T) {
	var typ string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		typ = r.URL.Query().Get("type")
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	if _, err := a.Search(context.Background(), model.QuantizedQuery{GridRadius: 50}, "karaoke", "client-key", nil); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if typ != "point_of_interest" {
		t.Fatalf("type=%q", typ)
	}
}

func TestSearch_UpstreamFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-2xx": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota", http.StatusTooManyRequests)
		},
		"malformed": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"results": [`))
		},
		"denied": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := newTestAdapter(srv.URL).Search(context.Background(), model.QuantizedQuery{GridRadius: 100}, "", "", nil)
			if !errs.Is(err, errs.KindUpstream) {
				t.Fatalf("want upstream error, got %v", err)
			}
		})
	}
}

func TestNormalizeSearchResults_Representative(t *testing.T) {
	a := newTestAdapter("http://unused")
	places := a.NormalizeSearchResults([]byte(nearbyPayload))
	if len(places) != 2 {
		t.Fatalf("len=%d want 2", len(places))
	}
	p := places[0]
	if p.ProviderPlaceID != "g1" || p.FormattedAddress != "1208 S Howard Ave, Tampa" {
		t.Fatalf("place=%+v", p)
	}
	if p.Rating == nil || *p.Rating != 4.6 || p.RatingCount == nil || *p.RatingCount != 9120 {
		t.Fatalf("rating fields=%v %v", p.Rating, p.RatingCount)
	}
	if p.OpeningHours == nil || p.OpeningHours.OpenNow == nil || !*p.OpeningHours.OpenNow {
		t.Fatalf("opening hours=%+v", p.OpeningHours)
	}
	if len(p.Photos) != 1 || p.Photos[0].Reference != "ph1" || *p.Photos[0].Width != 800 {
		t.Fatalf("photos=%+v", p.Photos)
	}

	sparse := places[1]
	if sparse.Rating != nil || sparse.OpeningHours != nil || sparse.Phone != nil || sparse.Website != nil {
		t.Fatalf("absent fields must be nil: %+v", sparse)
	}
	if sparse.Categories == nil || sparse.Photos == nil {
		t.Fatalf("lists must be non-nil")
	}
}

func TestNormalize_Totality(t *testing.T) {
	a := newTestAdapter("http://unused")
	for _, raw := range []string{``, `{}`, `[]`, `null`, `{"results": null}`, `{"results": {}}`, `not json`} {
		if got := a.NormalizeSearchResults([]byte(raw)); got == nil || len(got) != 0 {
			t.Fatalf("%q: got %v", raw, got)
		}
		if got := a.NormalizeDetails([]byte(raw)); got != nil {
			t.Fatalf("%q: details got %+v", raw, got)
		}
	}

	// every canonical field is present in the serialized form
	places := a.NormalizeSearchResults([]byte(nearbyPayload))
	b, err := json.Marshal(places[1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, f := range []string{"providerPlaceId", "name", "location", "formattedAddress", "categories",
		"rating", "ratingCount", "openingHours", "photos", "priceLevel", "phone", "website"} {
		if !strings.Contains(string(b), `"`+f+`":`) {
			t.Fatalf("field %s missing from %s", f, b)
		}
	}
	if !strings.Contains(string(b), `"categories":[]`) || !strings.Contains(string(b), `"rating":null`) {
		t.Fatalf("unexpected encoding: %s", b)
	}
}

func TestNormalizeDetails_EvaluatesPeriodsInPlaceZone(t *testing.T) {
	raw := `{
	  "status": "OK",
	  "result": {
	    "place_id": "g9",
	    "name": "Late Diner",
	    "formatted_address": "1 Main St",
	    "utc_offset": -300,
	    "international_phone_number": "+1 813-555-0100",
	    "website": "https://diner.example",
	    "opening_hours": {
	      "open_now": false,
	      "weekday_text": ["Wednesday: 6:00 AM - 9:00 AM"],
	      "periods": [{"open": {"day": 3, "time": "0600"}, "close": {"day": 3, "time": "0900"}}]
	    }
	  }
	}`
	// 12:00 UTC is 07:00 at UTC-5, inside the Wednesday period
	p := newTestAdapter("http://unused").NormalizeDetails([]byte(raw))
	if p == nil {
		t.Fatalf("expected place")
	}
	if p.OpeningHours.OpenNow == nil || !*p.OpeningHours.OpenNow {
		t.Fatalf("openNow should come from periods, got %v", p.OpeningHours.OpenNow)
	}
	if p.Phone == nil || *p.Phone != "+1 813-555-0100" || p.Website == nil {
		t.Fatalf("contact fields=%v %v", p.Phone, p.Website)
	}
	if len(p.OpeningHours.WeekdayText) != 1 {
		t.Fatalf("weekday text=%v", p.OpeningHours.WeekdayText)
	}
}

func TestNormalizeDetails_MalformedPeriodsGiveNullOpenNow(t *testing.T) {
	raw := `{"status":"OK","result":{"place_id":"g3","opening_hours":{"periods":[{"open":{"day":"mon"}}]}}}`
	p := newTestAdapter("http://unused").NormalizeDetails([]byte(raw))
	if p == nil || p.OpeningHours == nil {
		t.Fatalf("expected opening hours object")
	}
	if p.OpeningHours.OpenNow != nil {
		t.Fatalf("openNow=%v want nil", *p.OpeningHours.OpenNow)
	}
	if p.OpeningHours.WeekdayText == nil {
		t.Fatalf("weekday text must be an empty list")
	}
}

func TestDetails_RequestAndKeyOverride(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{"status":"NOT_FOUND"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	b, err := a.Details(context.Background(), "ChIJabc", "client-key")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if got.URL.Path != "/details/json" || got.URL.Query().Get("place_id") != "ChIJabc" {
		t.Fatalf("url=%s", got.URL)
	}
	if got.URL.Query().Get("key") != "client-key" {
		t.Fatalf("client key should override server key")
	}
	if a.NormalizeDetails(b) != nil {
		t.Fatalf("NOT_FOUND should normalize to nil")
	}
}
