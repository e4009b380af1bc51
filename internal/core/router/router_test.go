package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/config"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/errs"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
)

type fakeLookuper struct {
	lastQ model.QueryRequest
	res   model.Result
	err   error
	calls int
}

func (f *fakeLookuper) Lookup(ctx context.Context, q model.QueryRequest) (model.Result, error) {
	f.calls++
	f.lastQ = q
	return f.res, f.err
}

func testCfg() config.Config {
	return config.Config{MinRadius: 50, MaxRadius: 50000, DefaultRadius: 1000}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseQueryRequest_Nearby(t *testing.T) {
	q := url.Values{}
	q.Set("lat", "27.9506")
	q.Set("lng", "-82.4572")
	q.Set("radius", "430")
	q.Set("type", "restaurant")
	q.Add("keyword", "cuban")
	q.Add("keyword", "vegan")
	q.Set("provider", "Google")
	req := httptest.NewRequest(http.MethodGet, "/places?"+q.Encode(), nil)
	req.Header.Set(HeaderProviderKey, "k-123")

	got, err := ParseQueryRequest(req, testCfg())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Mode != model.ModeNearby || got.Provider != "google" || got.APIKey != "k-123" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Geo.Lat != 27.9506 || got.Geo.Lng != -82.4572 || got.Geo.RadiusMeters != 430 {
		t.Fatalf("geo=%+v", got.Geo)
	}
	if len(got.Geo.Keywords) != 2 || got.Geo.PlaceType != "restaurant" {
		t.Fatalf("geo=%+v", got.Geo)
	}
}

func TestParseQueryRequest_RadiusDefaultsAndFloor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/places?lat=1&lng=2", nil)
	got, err := ParseQueryRequest(req, testCfg())
	if err != nil {
		t.Fatal(err)
	}
	if got.Geo.RadiusMeters != 1000 {
		t.Fatalf("default radius=%d", got.Geo.RadiusMeters)
	}

	req = httptest.NewRequest(http.MethodGet, "/places?lat=1&lng=2&radius=10", nil)
	got, err = ParseQueryRequest(req, testCfg())
	if err != nil {
		t.Fatal(err)
	}
	if got.Geo.RadiusMeters != 50 {
		t.Fatalf("floored radius=%d", got.Geo.RadiusMeters)
	}
}

func TestParseQueryRequest_Flags(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/places?lat=1&lng=2&no-cache&cache-reset=1740830400000", nil)
	got, err := ParseQueryRequest(req, testCfg())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Flags.NoCache {
		t.Fatalf("bare no-cache should be true")
	}
	if got.Flags.ResetBefore == nil || *got.Flags.ResetBefore != 1740830400000 {
		t.Fatalf("reset=%v", got.Flags.ResetBefore)
	}

	req = httptest.NewRequest(http.MethodGet, "/places?lat=1&lng=2&no-cache=false", nil)
	got, err = ParseQueryRequest(req, testCfg())
	if err != nil || got.Flags.NoCache {
		t.Fatalf("no-cache=false: flags=%+v err=%v", got.Flags, err)
	}
}

func TestParseQueryRequest_DetailsMode(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/places?placeId=ChIJ123", nil)
	got, err := ParseQueryRequest(req, testCfg())
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != model.ModeDetails || got.PlaceID != "ChIJ123" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseQueryRequest_Malformed(t *testing.T) {
	for _, raw := range []string{
		"lng=2",
		"lat=abc&lng=2",
		"lat=1&lng=2&radius=wide",
		"lat=1&lng=2&no-cache=maybe",
		"lat=1&lng=2&cache-reset=yesterday",
		"lat=1&lng=2&radius=1e20",
		"lat=1&lng=2&radius=9.3e18",
		"lat=1&lng=2&radius=Inf",
		"lat=1&lng=2&radius=-Inf",
		"lat=1&lng=2&radius=NaN",
		"lat=1&lng=2&radius=50001",
	} {
		req := httptest.NewRequest(http.MethodGet, "/places?"+raw, nil)
		if _, err := ParseQueryRequest(req, testCfg()); !errs.Is(err, errs.KindInvalidInput) {
			t.Errorf("%s: want invalid input, got %v", raw, err)
		}
	}
}

func TestParseQueryRequest_FractionalRadiusRoundsUp(t *testing.T) {
	for raw, want := range map[string]int{"100.2": 101, "49.5": 50, "50000": 50000} {
		req := httptest.NewRequest(http.MethodGet, "/places?lat=1&lng=2&radius="+raw, nil)
		q, err := ParseQueryRequest(req, testCfg())
		if err != nil {
			t.Fatalf("radius=%s: %v", raw, err)
		}
		if q.Geo.RadiusMeters != want {
			t.Fatalf("radius=%s: got %d want %d", raw, q.Geo.RadiusMeters, want)
		}
	}
}

func TestHandlePlaces_WritesCacheHeaders(t *testing.T) {
	f := &fakeLookuper{res: model.Result{
		Kind:     model.KindNearby,
		CacheHit: true,
		Key:      "nearby:v1:google:27.95000,-82.45700:800:restaurant",
		Places:   []model.Place{{ProviderPlaceID: "p1", Name: "Ulele"}},
	}}
	rr := httptest.NewRecorder()
	HandlePlaces(discard(), testCfg(), f)(rr, httptest.NewRequest(http.MethodGet, "/places?lat=27.95&lng=-82.457", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(HeaderCache) != "HIT" || rr.Header().Get(HeaderCacheKind) != "nearby" {
		t.Fatalf("headers=%v", rr.Header())
	}
	if rr.Header().Get(HeaderCacheKey) != f.res.Key {
		t.Fatalf("key header=%q", rr.Header().Get(HeaderCacheKey))
	}
	var places []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &places); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(places) != 1 || places[0]["providerPlaceId"] != "p1" {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestHandlePlaces_EmptyListIsArray(t *testing.T) {
	f := &fakeLookuper{res: model.Result{Kind: model.KindNearby, Key: "k"}}
	rr := httptest.NewRecorder()
	HandlePlaces(discard(), testCfg(), f)(rr, httptest.NewRequest(http.MethodGet, "/places?lat=1&lng=2", nil))
	if got := rr.Body.String(); got != "[]\n" {
		t.Fatalf("body=%q want []", got)
	}
	if rr.Header().Get(HeaderCache) != "MISS" {
		t.Fatalf("X-Cache=%q", rr.Header().Get(HeaderCache))
	}
}

func TestHandlePlaces_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{errs.Invalid("gateway.validate", "bad lat"), http.StatusBadRequest, "invalid_input"},
		{errs.Upstream("google.search", errors.New("timeout")), http.StatusBadGateway, "upstream"},
		{errs.CacheStore("cache.get", errors.New("down")), http.StatusServiceUnavailable, "cache_store"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		f := &fakeLookuper{err: tc.err}
		rr := httptest.NewRecorder()
		HandlePlaces(discard(), testCfg(), f)(rr, httptest.NewRequest(http.MethodGet, "/places?lat=1&lng=2", nil))
		if rr.Code != tc.code {
			t.Errorf("%v: status=%d want %d", tc.err, rr.Code, tc.code)
		}
		var body errorBody
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(body.Error.Kind) != tc.kind || body.Error.Message == "" {
			t.Errorf("%v: body=%s", tc.err, rr.Body.String())
		}
	}
}

func TestHandlePlaces_ParseErrorSkipsLookup(t *testing.T) {
	f := &fakeLookuper{}
	rr := httptest.NewRecorder()
	HandlePlaces(discard(), testCfg(), f)(rr, httptest.NewRequest(http.MethodGet, "/places?lat=x&lng=2", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	if f.calls != 0 {
		t.Fatalf("lookup called on malformed input")
	}
}

func TestHandleDetails_RouteParam(t *testing.T) {
	f := &fakeLookuper{res: model.Result{Kind: model.KindDetails, Key: "details:v1:google:abc"}}
	r := chi.NewRouter()
	r.Get(routeDetails, HandleDetails(discard(), testCfg(), f))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/places/details/abc?no-cache=1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if f.lastQ.Mode != model.ModeDetails || f.lastQ.PlaceID != "abc" || !f.lastQ.Flags.NoCache {
		t.Fatalf("request=%+v", f.lastQ)
	}
	if got := rr.Body.String(); got != "null\n" {
		t.Fatalf("not-found details body=%q want null", got)
	}
	if rr.Header().Get(HeaderCacheKind) != "details" {
		t.Fatalf("kind header=%q", rr.Header().Get(HeaderCacheKind))
	}
}
