// Package metricswrap decorates a hotness tracker with gauges and
// threshold logging.
package metricswrap

import (
	"context"
	"log/slog"
	"sync"

	xx "github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
	"github.com/mohammed-shakir/places-cache-gateway/internal/hotness"
)

type Sizer interface{ Size() int }

type Config struct {
	Tier string
	// Threshold is the score at which a cell is reported hot; 0 disables it.
	Threshold float64
	// LogSample is the fraction of cells whose crossing is logged.
	LogSample float64
	Logger    *slog.Logger
}

type WithMetrics struct {
	inner hotness.Interface
	cfg   Config

	mu  sync.Mutex
	hot map[string]struct{}
}

var _ hotness.Interface = (*WithMetrics)(nil)

func New(inner hotness.Interface, cfg Config) *WithMetrics {
	if cfg.Tier == "" {
		cfg.Tier = "cell"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &WithMetrics{inner: inner, cfg: cfg, hot: make(map[string]struct{})}
}

func (w *WithMetrics) Inc(cell string) {
	w.inner.Inc(cell)
	if w.cfg.Threshold > 0 {
		w.checkThreshold(cell)
	}
	w.updateGauge()
}

// checkThreshold logs a cell once per crossing of the threshold.
func (w *WithMetrics) checkThreshold(cell string) {
	score := w.inner.Score(cell)

	w.mu.Lock()
	_, was := w.hot[cell]
	is := score >= w.cfg.Threshold
	switch {
	case is && !was:
		w.hot[cell] = struct{}{}
	case !is && was:
		delete(w.hot, cell)
	}
	n := len(w.hot)
	w.mu.Unlock()

	observability.SetHotKeysGauge(w.cfg.Tier+"_hot", n)
	if is && !was && shouldLog(w.cfg.LogSample, cell) {
		w.cfg.Logger.LogAttrs(context.Background(), slog.LevelInfo, "hot cell above threshold",
			slog.String("event", "hotness_threshold"),
			slog.String("cell", cell),
			slog.Float64("score", score),
			slog.String("tier", w.cfg.Tier))
	}
}

func (w *WithMetrics) Score(cell string) float64 {
	return w.inner.Score(cell)
}

func (w *WithMetrics) Reset(cells ...string) {
	w.inner.Reset(cells...)
	w.mu.Lock()
	for _, c := range cells {
		delete(w.hot, c)
	}
	w.mu.Unlock()
	w.updateGauge()
}

// Hot reports whether cell is currently at or above the threshold.
func (w *WithMetrics) Hot(cell string) bool {
	return w.cfg.Threshold > 0 && w.inner.Score(cell) >= w.cfg.Threshold
}

func (w *WithMetrics) updateGauge() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotKeysGauge(w.cfg.Tier, s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	return xx.Sum64String(key)%denom < threshold
}
