package metricswrap

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
	"github.com/mohammed-shakir/places-cache-gateway/internal/hotness/expdecay"
	"github.com/mohammed-shakir/places-cache-gateway/internal/metrics"
)

func Test_HotnessGauge_Updates(t *testing.T) {
	p := metrics.Init(metrics.Config{})
	observability.Init(p.Registerer(), true)

	tr := expdecay.New(30 * time.Second)
	w := New(tr, Config{Tier: "gauge_test"})

	w.Inc("8844c0a305fffff")
	w.Inc("8844c0a31dfffff")
	w.Reset("8844c0a305fffff")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	body := rr.Body.String()

	if !strings.Contains(body, `hot_cells_tracked{tier="gauge_test"} 1`) {
		t.Fatalf("expected hot_cells_tracked gauge == 1, got:\n%s", body)
	}
}

func Test_Threshold_LogsOncePerCrossing(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	w := New(expdecay.New(time.Hour), Config{Tier: "threshold_test", Threshold: 3, LogSample: 1, Logger: log})

	cell := "8844c0a305fffff"
	for range 5 {
		w.Inc(cell)
	}
	if got := strings.Count(buf.String(), "hot cell above threshold"); got != 1 {
		t.Fatalf("logged %d times, want 1:\n%s", got, buf.String())
	}
	if !w.Hot(cell) {
		t.Fatalf("cell should be hot")
	}
	if w.Hot("8844c0a31dfffff") {
		t.Fatalf("untouched cell should not be hot")
	}
}

func Test_ShouldLog_Bounds(t *testing.T) {
	if shouldLog(0, "x") || !shouldLog(1, "x") {
		t.Fatalf("sample bounds not honored")
	}
}
