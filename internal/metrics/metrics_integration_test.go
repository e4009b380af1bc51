package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})
	observability.Init(p.Registerer(), true)
	observability.ExposeBuildInfo("test")

	observability.IncCacheHit("nearby")
	observability.IncCacheMiss("nearby")
	observability.ObserveCacheOp("get_meta", nil, 0.002)
	observability.ObserveUpstreamLatency("google", "nearby", 0.120)
	observability.ObserveLookup("nearby", "google", "MISS_RETURNED")

	observability.SetHotKeysGauge("tracked", 42)
	observability.IncKafkaConsumerError("decode")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`cache_op_duration_seconds_count{op="get_meta"}`,
		`upstream_latency_seconds_bucket{op="nearby",provider="google"`,
		`hot_cells_tracked{tier="tracked"} 42`,
		`kafka_consumer_errors_total{kind="decode"} `,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "cache_results_total", `kind="nearby"`, `outcome="hit"`)
	assertHasMetricLine(t, body, "cache_results_total", `kind="nearby"`, `outcome="miss"`)
	assertHasMetricLine(t, body, "gateway_lookups_total", `state="MISS_RETURNED"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`)
	assertHasMetricLine(t, body, "gateway_build_info", `version="test"`)
}
