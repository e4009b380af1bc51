package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/config"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/errs"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
	mylog "github.com/mohammed-shakir/places-cache-gateway/internal/logger"
)

const (
	HeaderCache       = "X-Cache"
	HeaderCacheKind   = "X-Cache-Kind"
	HeaderCacheKey    = "X-Cache-Key"
	HeaderProviderKey = "X-Provider-Key"

	routePlaces  = "/places"
	routeDetails = "/places/details/{placeId}"
)

// serves validated lookups
type Lookuper interface {
	Lookup(ctx context.Context, req model.QueryRequest) (model.Result, error)
}

// HandlePlaces serves GET /places in nearby or details mode.
func HandlePlaces(logger *slog.Logger, cfg config.Config, g Lookuper) http.HandlerFunc {
	return handle(logger, routePlaces, g, func(r *http.Request) (model.QueryRequest, error) {
		return ParseQueryRequest(r, cfg)
	})
}

// HandleDetails serves GET /places/details/{placeId}.
func HandleDetails(logger *slog.Logger, cfg config.Config, g Lookuper) http.HandlerFunc {
	return handle(logger, routeDetails, g, func(r *http.Request) (model.QueryRequest, error) {
		id := strings.TrimSpace(chi.URLParam(r, "placeId"))
		return parseRequest(r, cfg, &id)
	})
}

func handle(logger *slog.Logger, route string, g Lookuper, parse func(*http.Request) (model.QueryRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
		}()

		q, err := parse(r)
		if err != nil {
			WriteError(sw, err)
			return
		}

		res, err := g.Lookup(r.Context(), q)
		if err != nil {
			if errs.KindOf(err) == errs.KindInternal {
				logger.ErrorContext(r.Context(), "lookup failed", "err", err)
			}
			WriteError(sw, err)
			return
		}

		status := "MISS"
		if res.CacheHit {
			status = "HIT"
		}
		ctx := mylog.WithCacheStatus(r.Context(), status)
		logger.DebugContext(ctx, "lookup served", "key", res.Key, "places", len(res.Places))

		h := sw.Header()
		h.Set(HeaderCache, status)
		h.Set(HeaderCacheKind, string(res.Kind))
		h.Set(HeaderCacheKey, res.Key)
		writeJSON(sw, http.StatusOK, res.Body())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseQueryRequest reads the lookup parameters. Range checks are left to the
// gateway; only malformed values are rejected here.
func ParseQueryRequest(r *http.Request, cfg config.Config) (model.QueryRequest, error) {
	var placeID *string
	if id := strings.TrimSpace(r.URL.Query().Get("placeId")); id != "" {
		placeID = &id
	}
	return parseRequest(r, cfg, placeID)
}

// a non-nil placeID selects details mode
func parseRequest(r *http.Request, cfg config.Config, placeID *string) (model.QueryRequest, error) {
	v := r.URL.Query()
	q := model.QueryRequest{
		Mode:     model.ModeNearby,
		Provider: strings.ToLower(strings.TrimSpace(v.Get("provider"))),
		APIKey:   strings.TrimSpace(r.Header.Get(HeaderProviderKey)),
	}

	noCache, err := parseFlag(v, "no-cache")
	if err != nil {
		return q, err
	}
	q.Flags.NoCache = noCache

	if raw := strings.TrimSpace(v.Get("cache-reset")); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ts < 0 {
			return q, errs.Invalid("router.parse", "cache-reset must be epoch milliseconds, got %q", raw)
		}
		q.Flags.ResetBefore = &ts
	}

	if placeID != nil {
		q.Mode = model.ModeDetails
		q.PlaceID = *placeID
		return q, nil
	}

	lat, err := parseCoord(v.Get("lat"), "lat")
	if err != nil {
		return q, err
	}
	lng, err := parseCoord(v.Get("lng"), "lng")
	if err != nil {
		return q, err
	}

	radius := cfg.DefaultRadius
	if raw := strings.TrimSpace(v.Get("radius")); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return q, errs.Invalid("router.parse", "radius must be a number, got %q", raw)
		}
		if cfg.MaxRadius > 0 && f > float64(cfg.MaxRadius) {
			return q, errs.Invalid("router.parse", "radius %s exceeds maximum %d", raw, cfg.MaxRadius)
		}
		// never round a radius down
		radius = int(math.Max(math.Ceil(f), math.MinInt32))
	}
	if radius < cfg.MinRadius {
		radius = cfg.MinRadius
	}

	q.Geo = model.GeoQuery{
		Lat:          lat,
		Lng:          lng,
		RadiusMeters: radius,
		PlaceType:    strings.TrimSpace(v.Get("type")),
		Keywords:     v["keyword"],
	}
	return q, nil
}

func parseCoord(raw, name string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errs.Invalid("router.parse", "missing required parameter: %s", name)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errs.Invalid("router.parse", "%s must be a number, got %q", name, raw)
	}
	return f, nil
}

// a bare flag (?no-cache) counts as true
func parseFlag(v map[string][]string, name string) (bool, error) {
	vals, ok := v[name]
	if !ok {
		return false, nil
	}
	raw := ""
	if len(vals) > 0 {
		raw = strings.TrimSpace(vals[0])
	}
	if raw == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errs.Invalid("router.parse", "%s must be a boolean, got %q", name, raw)
	}
	return b, nil
}

type errorBody struct {
	Error struct {
		Kind    errs.Kind `json:"kind"`
		Message string    `json:"message"`
	} `json:"error"`
}

// WriteError maps err to its status code and the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = message(err, kind)
	writeJSON(w, errs.HTTPStatus(kind), body)
}

func message(err error, kind errs.Kind) string {
	var e *errs.Error
	switch kind {
	case errs.KindInvalidInput:
		if errors.As(err, &e) && e.Msg != "" {
			return e.Msg
		}
		return err.Error()
	case errs.KindUpstream:
		return "upstream provider request failed"
	case errs.KindCacheStore:
		return "cache store unavailable"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
