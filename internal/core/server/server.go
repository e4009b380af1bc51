package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/places-cache-gateway/internal/auth"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/config"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/health"
	middleware "github.com/mohammed-shakir/places-cache-gateway/internal/core/middleware"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/router"
)

// Deps are the collaborators the HTTP surface dispatches to.
type Deps struct {
	Lookup router.Lookuper
	Ready  health.Checker
	Auth   auth.Authorizer
	// Metrics defaults to the default prometheus registry.
	Metrics http.Handler
}

// NewRouter wires the routes. Probes and metrics stay outside auth.
func NewRouter(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	if d.Auth == nil {
		d.Auth = auth.AllowAll{}
	}
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(cfg.CacheOpTimeout+time.Second, map[string]health.Checker{"cache": d.Ready}))
	r.Method(http.MethodGet, "/metrics", d.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Auth, logger))
		r.Get("/places", router.HandlePlaces(logger, cfg, d.Lookup))
		r.Get("/places/details/{placeId}", router.HandleDetails(logger, cfg, d.Lookup))
	})
	return r
}

// Run serves until ctx is canceled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
