package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/errs"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
)

const maxBody = 4 << 20

var ErrMalformed = errors.New("malformed provider payload")

// Fetcher issues provider GET calls and classifies their failures.
type Fetcher struct {
	Client   *http.Client
	Provider string
	Tracer   trace.Tracer
}

func NewFetcher(client *http.Client, provider string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		Client:   client,
		Provider: provider,
		Tracer:   otel.Tracer("places-cache-gateway/providers"),
	}
}

// GetJSON fetches base?query with the given headers and returns the body
// once it is known to be a JSON document.
func (f *Fetcher) GetJSON(ctx context.Context, op, base string, query url.Values, hdr http.Header) ([]byte, error) {
	ctx, span := f.Tracer.Start(ctx, "provider."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider", f.Provider)))
	defer span.End()

	b, err := f.get(ctx, op, base, query, hdr)
	if err != nil {
		observability.IncUpstreamError(f.Provider, op)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Upstream(f.Provider+"."+op, err)
	}
	return b, nil
}

func (f *Fetcher) get(ctx context.Context, op, base string, query url.Values, hdr http.Header) ([]byte, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	observability.ObserveUpstreamLatency(f.Provider, op, time.Since(start).Seconds())
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !gjson.ValidBytes(b) {
		return nil, ErrMalformed
	}
	return b, nil
}
