package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ExposeBuildInfo("test")
	ObserveHTTP("GET", "/places", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "gateway_build_info") || !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestInit_IsIdempotentPerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	Init(reg, true)

	Init(nil, true)
	Init(prometheus.NewRegistry(), false)
}

func TestCacheCounters_ByKindAndOutcome(t *testing.T) {
	beforeHit := testutil.ToFloat64(cacheResults.WithLabelValues("details", "hit"))
	beforeMiss := testutil.ToFloat64(cacheResults.WithLabelValues("details", "miss"))

	IncCacheHit("details")
	IncCacheHit("details")
	IncCacheMiss("details")

	if got := testutil.ToFloat64(cacheResults.WithLabelValues("details", "hit")) - beforeHit; got != 2 {
		t.Fatalf("hit delta=%v want 2", got)
	}
	if got := testutil.ToFloat64(cacheResults.WithLabelValues("details", "miss")) - beforeMiss; got != 1 {
		t.Fatalf("miss delta=%v want 1", got)
	}
}

func TestObserveCacheOp_SplitsByResult(t *testing.T) {
	okBefore := testutil.ToFloat64(cacheOpTotal.WithLabelValues("put", "ok"))
	errBefore := testutil.ToFloat64(cacheOpTotal.WithLabelValues("put", "error"))

	ObserveCacheOp("put", nil, 0.001)
	ObserveCacheOp("put", errors.New("boom"), 0.002)

	if d := testutil.ToFloat64(cacheOpTotal.WithLabelValues("put", "ok")) - okBefore; d != 1 {
		t.Fatalf("ok delta=%v", d)
	}
	if d := testutil.ToFloat64(cacheOpTotal.WithLabelValues("put", "error")) - errBefore; d != 1 {
		t.Fatalf("error delta=%v", d)
	}
}

func TestHotKeysGauge_Sets(t *testing.T) {
	SetHotKeysGauge("hot", 7)
	if v := testutil.ToFloat64(hotKeys.WithLabelValues("hot")); v != 7 {
		t.Fatalf("gauge=%v want 7", v)
	}
}
