// Package gateway orchestrates a place lookup: quantize, build the key,
// consult the cache, and on a miss fetch, normalize and store.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/places-cache-gateway/internal/cache"
	"github.com/mohammed-shakir/places-cache-gateway/internal/cache/keys"
	"github.com/mohammed-shakir/places-cache-gateway/internal/cache/policy"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/errs"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
	"github.com/mohammed-shakir/places-cache-gateway/internal/hitevents"
	"github.com/mohammed-shakir/places-cache-gateway/internal/hotness"
	"github.com/mohammed-shakir/places-cache-gateway/internal/logger"
	"github.com/mohammed-shakir/places-cache-gateway/internal/mapper"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers"
	"github.com/mohammed-shakir/places-cache-gateway/internal/quantize"
)

const unknownProvider = "unknown"

type Config struct {
	Version        string
	TTLs           policy.TTLs
	MinRadius      int
	MaxRadius      int
	CacheOpTimeout time.Duration
	Singleflight   bool
	H3Res          int
}

type Gateway struct {
	cfg      Config
	reg      *providers.Registry
	store    cache.Store
	policy   policy.Policy
	validate *validator.Validate
	log      *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	events hitevents.Publisher
	hot    hotness.Interface
	cells  mapper.Interface

	sf singleflight.Group
}

type Option func(*Gateway)

func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.log = l } }

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
		g.policy = policy.WithClock(now)
	}
}

func WithTracer(t trace.Tracer) Option { return func(g *Gateway) { g.tracer = t } }

func WithEvents(p hitevents.Publisher) Option { return func(g *Gateway) { g.events = p } }

// WithHotness scores nearby lookups by the H3 cell of their grid point.
func WithHotness(h hotness.Interface, m mapper.Interface) Option {
	return func(g *Gateway) { g.hot, g.cells = h, m }
}

func New(cfg Config, reg *providers.Registry, store cache.Store, opts ...Option) *Gateway {
	if cfg.Version == "" {
		cfg.Version = "v1"
	}
	if cfg.MinRadius <= 0 {
		cfg.MinRadius = quantize.MinRadiusBucket
	}
	if cfg.MaxRadius <= 0 || cfg.MaxRadius > quantize.MaxRadius {
		cfg.MaxRadius = quantize.MaxRadius
	}
	if cfg.CacheOpTimeout <= 0 {
		cfg.CacheOpTimeout = 250 * time.Millisecond
	}
	g := &Gateway{
		cfg:      cfg,
		reg:      reg,
		store:    store,
		policy:   policy.New(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("places-cache-gateway/gateway"),
		now:      time.Now,
		events:   hitevents.Noop{},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Ready reports whether the cache store answers.
func (g *Gateway) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CacheOpTimeout)
	defer cancel()
	if err := g.store.Ping(ctx); err != nil {
		return errs.CacheStore("gateway.ready", err)
	}
	return nil
}

// lookup carries one request through the state machine.
type lookup struct {
	req     model.QueryRequest
	adapter providers.Adapter
	state   State
	span    trace.Span
	cell    string
	key     string
	q       model.QuantizedQuery
}

func (l *lookup) advance(to State) {
	if !CanTransition(l.state, to) {
		panic(fmt.Sprintf("gateway: illegal transition %s -> %s", l.state, to))
	}
	l.state = to
	l.span.AddEvent(string(to))
}

// Lookup answers a nearby or details query, from cache when a fresh entry
// exists and from the selected provider otherwise.
func (g *Gateway) Lookup(ctx context.Context, req model.QueryRequest) (model.Result, error) {
	kind := req.Mode.Kind()
	ctx, span := g.tracer.Start(ctx, "gateway.lookup",
		trace.WithAttributes(attribute.String("kind", string(kind))))
	defer span.End()

	l := &lookup{req: req, state: StateReceived, span: span}
	res, err := g.run(ctx, l)

	// only registered names reach labels and logs
	provider := unknownProvider
	if l.adapter != nil {
		provider = l.adapter.Name()
	}
	if err != nil {
		if !l.state.Terminal() {
			l.advance(StateFailed)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.log.WarnContext(ctx, "lookup failed", "kind", kind, "provider", provider, "err", err)
	}
	span.SetAttributes(
		attribute.String("provider", provider),
		attribute.String("state", string(l.state)),
		attribute.Bool("cache.hit", res.CacheHit),
	)
	observability.ObserveLookup(string(kind), provider, string(l.state))
	g.record(ctx, l, provider, res)
	return res, err
}

func (g *Gateway) run(ctx context.Context, l *lookup) (model.Result, error) {
	req := l.req
	a, err := g.reg.Lookup(req.Provider)
	if err != nil {
		return model.Result{}, err
	}
	l.adapter = a
	ctx = logger.WithProvider(ctx, a.Name())

	if req.Mode == model.ModeDetails {
		return g.details(ctx, l)
	}
	return g.nearby(ctx, l)
}

func (g *Gateway) nearby(ctx context.Context, l *lookup) (model.Result, error) {
	geo := l.req.Geo
	if err := g.validate.Struct(geo); err != nil {
		return model.Result{}, invalid(err)
	}
	if geo.RadiusMeters > g.cfg.MaxRadius {
		return model.Result{}, errs.Invalid("gateway.validate", "radius %d exceeds maximum %d", geo.RadiusMeters, g.cfg.MaxRadius)
	}
	if geo.RadiusMeters < g.cfg.MinRadius {
		geo.RadiusMeters = g.cfg.MinRadius
	}

	l.q = quantize.Quantize(geo.Lat, geo.Lng, geo.RadiusMeters)
	l.advance(StateQuantized)

	kws := keys.NormalizeKeywords(geo.Keywords)
	l.key = keys.NearbyKey(l.q, geo.PlaceType, kws, l.adapter.Name(), g.cfg.Version)
	l.advance(StateKeyBuilt)

	res := model.Result{
		Kind:            model.KindNearby,
		Key:             l.key,
		Provider:        l.adapter.Name(),
		EffectiveRadius: l.q.GridRadius,
	}

	if raw, ok := g.readFresh(ctx, l); ok {
		var places []model.Place
		if err := json.Unmarshal(raw, &places); err == nil {
			for i := range places {
				places[i].Fill()
			}
			l.advance(StateHitReturned)
			res.CacheHit = true
			res.Places = places
			return res, nil
		}
		g.log.WarnContext(ctx, "cached nearby payload unreadable, refetching", "key", l.key)
	}

	l.advance(StateFetching)
	v, err := g.fetchShared(ctx, l, func(ctx context.Context) (any, error) {
		raw, err := l.adapter.Search(ctx, l.q, geo.PlaceType, l.req.APIKey, kws)
		if err != nil {
			return nil, upstream(l.adapter.Name()+".search", err)
		}
		places := l.adapter.NormalizeSearchResults(raw)
		if places == nil {
			places = []model.Place{}
		}
		return places, nil
	})
	if err != nil {
		return model.Result{}, err
	}
	res.Places = v.([]model.Place)
	return res, nil
}

func (g *Gateway) details(ctx context.Context, l *lookup) (model.Result, error) {
	if err := g.validate.Var(l.req.PlaceID, "required,max=512,printascii"); err != nil {
		return model.Result{}, errs.Invalid("gateway.validate", "placeId must be 1-512 printable ASCII characters")
	}
	l.key = keys.DetailsKey(l.req.PlaceID, l.adapter.Name(), g.cfg.Version)
	l.advance(StateKeyBuilt)

	res := model.Result{Kind: model.KindDetails, Key: l.key, Provider: l.adapter.Name()}

	if raw, ok := g.readFresh(ctx, l); ok {
		var p model.Place
		if err := json.Unmarshal(raw, &p); err == nil {
			p.Fill()
			l.advance(StateHitReturned)
			res.CacheHit = true
			res.Place = &p
			return res, nil
		}
		g.log.WarnContext(ctx, "cached details payload unreadable, refetching", "key", l.key)
	}

	l.advance(StateFetching)
	v, err := g.fetchShared(ctx, l, func(ctx context.Context) (any, error) {
		raw, err := l.adapter.Details(ctx, l.req.PlaceID, l.req.APIKey)
		if err != nil {
			return nil, upstream(l.adapter.Name()+".details", err)
		}
		return l.adapter.NormalizeDetails(raw), nil
	})
	if err != nil {
		return model.Result{}, err
	}
	res.Place = v.(*model.Place)
	return res, nil
}

// readFresh returns the cached payload when the policy allows serving it.
// Store failures read as a miss.
func (g *Gateway) readFresh(ctx context.Context, l *lookup) ([]byte, bool) {
	flags := l.req.Flags
	if !g.policy.ShouldUseCache(flags) {
		observability.IncCacheBypass(string(l.req.Mode.Kind()))
		return nil, false
	}

	rctx, cancel := context.WithTimeout(ctx, g.cfg.CacheOpTimeout)
	e, found, err := g.store.GetWithMetadata(rctx, l.key)
	cancel()
	l.advance(StateCacheChecked)

	kind := l.req.Mode.Kind()
	if err != nil {
		g.log.WarnContext(ctx, "cache read failed, treating as miss", "key", l.key, "err", errs.CacheStore("cache.get", err))
		observability.IncCacheMiss(string(kind))
		return nil, false
	}
	if !found || !g.policy.IsEntryFresh(policy.Entry{WrittenAtEpochMillis: e.Metadata.Timestamp}, flags, g.cfg.TTLs.For(kind)) {
		observability.IncCacheMiss(string(kind))
		return nil, false
	}
	observability.IncCacheHit(string(kind))
	return e.Value, true
}

type fetched struct {
	value  any
	stored bool
}

// fetchShared runs fetch, then normalizes and stores the outcome. Concurrent
// callers for the same key share one execution when single-flight is on.
func (g *Gateway) fetchShared(ctx context.Context, l *lookup, fetch func(context.Context) (any, error)) (any, error) {
	do := func(ctx context.Context) (fetched, error) {
		v, err := fetch(ctx)
		if err != nil {
			return fetched{}, err
		}
		return fetched{value: v, stored: g.store0(ctx, l, v)}, nil
	}

	var (
		f   fetched
		err error
	)
	if !g.cfg.Singleflight {
		f, err = do(ctx)
	} else {
		// the shared call outlives any single caller's cancellation
		ch := g.sf.DoChan(l.key+"\x00"+l.req.APIKey, func() (any, error) {
			return do(context.WithoutCancel(ctx))
		})
		select {
		case r := <-ch:
			if r.Shared {
				observability.IncSingleflightShared()
			}
			if r.Err != nil {
				err = r.Err
			} else {
				f = r.Val.(fetched)
			}
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	l.advance(StateNormalized)
	if f.stored {
		l.advance(StateStored)
	}
	l.advance(StateMissReturned)
	return f.value, nil
}

// store0 writes a non-empty result through to the cache. Write failures are
// logged and swallowed.
func (g *Gateway) store0(ctx context.Context, l *lookup, v any) bool {
	switch t := v.(type) {
	case []model.Place:
		if len(t) == 0 {
			return false
		}
	case *model.Place:
		if t == nil {
			return false
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		g.log.ErrorContext(ctx, "encode result for cache", "key", l.key, "err", err)
		return false
	}
	kind := l.req.Mode.Kind()
	wctx, cancel := context.WithTimeout(ctx, g.cfg.CacheOpTimeout)
	defer cancel()
	err = g.store.Put(wctx, l.key, b, cache.PutOptions{
		TTL:      g.cfg.TTLs.For(kind),
		Metadata: cache.Metadata{Timestamp: g.now().UnixMilli()},
	})
	if err != nil {
		g.log.WarnContext(ctx, "cache write failed", "key", l.key, "err", errs.CacheStore("cache.put", err))
		return false
	}
	return true
}

// record feeds the hotness tracker and the lookup event stream.
func (g *Gateway) record(ctx context.Context, l *lookup, provider string, res model.Result) {
	if l.state == StateFailed && l.adapter == nil {
		return
	}
	ev := hitevents.Event{
		Kind:      string(l.req.Mode.Kind()),
		Provider:  provider,
		PlaceID:   l.req.PlaceID,
		CacheHit:  res.CacheHit,
		State:     string(l.state),
		RequestID: logger.RequestID(ctx),
		TS:        g.now().UTC(),
	}
	if l.req.Mode == model.ModeNearby && l.key != "" {
		ev.Lat, ev.Lng = l.q.GridLat, l.q.GridLng
		if g.cells != nil {
			cell, err := g.cells.CellForPoint(l.q.GridLat, l.q.GridLng, g.cfg.H3Res)
			if err == nil {
				ev.Cell = cell
				if g.hot != nil {
					g.hot.Inc(cell)
				}
			}
		}
	}
	g.events.Publish(ev)
}

func invalid(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return errs.Invalid("gateway.validate", "%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
	return errs.Invalid("gateway.validate", "%v", err)
}

func upstream(op string, err error) error {
	if errs.KindOf(err) != errs.KindInternal {
		return err
	}
	return errs.Upstream(op, err)
}
