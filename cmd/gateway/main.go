package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mohammed-shakir/places-cache-gateway/internal/auth"
	"github.com/mohammed-shakir/places-cache-gateway/internal/cache"
	"github.com/mohammed-shakir/places-cache-gateway/internal/cache/memstore"
	"github.com/mohammed-shakir/places-cache-gateway/internal/cache/redisstore"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/config"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/httpclient"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/server"
	"github.com/mohammed-shakir/places-cache-gateway/internal/gateway"
	"github.com/mohammed-shakir/places-cache-gateway/internal/hitevents"
	"github.com/mohammed-shakir/places-cache-gateway/internal/hotness/expdecay"
	"github.com/mohammed-shakir/places-cache-gateway/internal/hotness/metricswrap"
	"github.com/mohammed-shakir/places-cache-gateway/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/places-cache-gateway/internal/logger"
	h3mapper "github.com/mohammed-shakir/places-cache-gateway/internal/mapper/h3"
	"github.com/mohammed-shakir/places-cache-gateway/internal/metrics"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers/foursquare"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers/google"
	"github.com/mohammed-shakir/places-cache-gateway/internal/providers/local"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Env:       cfg.Env,
		Component: "gateway",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(p.Registerer(), true)
		metricsHandler = p.Handler()
		go func() {
			if err := p.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	}
	observability.ExposeBuildInfo(Version)

	if cfg.TracingStdout {
		shutdown, err := initTracing()
		if err != nil {
			appLog.Error("tracing setup failed", "err", err)
			return 1
		}
		defer shutdown()
	}

	appLog.Info("starting places gateway",
		"addr", cfg.Addr,
		"version", Version,
		"env", cfg.Env,
		"cache_backend", cfg.CacheBackend,
		"default_provider", cfg.DefaultProvider)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		appLog.Error("cache store setup failed", "err", err)
		return 1
	}
	defer closeStore()

	reg, err := buildRegistry(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("provider setup failed", "err", err)
		return 1
	}

	var events hitevents.Publisher = hitevents.Noop{}
	if cfg.Events.Enabled {
		p, err := hitevents.NewKafkaPublisher(cfg.KafkaBrokers, cfg.Events.Topic, 4096, appLog)
		if err != nil {
			appLog.Error("lookup events disabled", "err", err)
		} else {
			events = p
		}
	}
	defer func() {
		if err := events.Close(); err != nil {
			appLog.Warn("closing lookup events", "err", err)
		}
	}()

	tracker := expdecay.New(cfg.HotHalfLife)
	hot := metricswrap.New(tracker, metricswrap.Config{
		Tier:      fmt.Sprintf("res%d", cfg.H3Res),
		Threshold: cfg.HotThreshold,
		LogSample: 1,
		Logger:    appLog,
	})
	cells := h3mapper.New()
	go pruneHotness(ctx, tracker, cfg.HotHalfLife, fmt.Sprintf("res%d", cfg.H3Res))

	gw := gateway.New(gateway.Config{
		Version:        cfg.CacheVersion,
		TTLs:           cfg.TTLs,
		MinRadius:      cfg.MinRadius,
		MaxRadius:      cfg.MaxRadius,
		CacheOpTimeout: cfg.CacheOpTimeout,
		Singleflight:   cfg.Singleflight,
		H3Res:          cfg.H3Res,
	}, reg, store,
		gateway.WithLogger(appLog),
		gateway.WithEvents(events),
		gateway.WithHotness(hot, cells),
	)

	if cfg.Invalidation.Enabled {
		icfg := kafkaconsumer.DefaultConfig(cfg.KafkaBrokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID)
		consumer := kafkaconsumer.New(icfg, store, kafkaconsumer.Options{
			Logger:       appLog,
			CacheVersion: cfg.CacheVersion,
			Mapper:       cells,
			Hotness:      hot,
			H3Res:        cfg.H3Res,
		})
		if err := consumer.Start(ctx); err != nil {
			appLog.Error("invalidation consumer failed to start", "err", err)
			return 1
		}
		defer consumer.Stop()
	}

	deps := server.Deps{
		Lookup:  gw,
		Ready:   gw,
		Auth:    auth.New(cfg.Auth.Enabled, cfg.Auth.APIKeys, cfg.Auth.JWTSecret),
		Metrics: metricsHandler,
	}
	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func openStore(ctx context.Context, cfg config.Config) (cache.Store, func(), error) {
	if cfg.CacheBackend == config.BackendMemory {
		return memstore.New(cfg.MemCacheSize), func() {}, nil
	}
	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := redisstore.New(dctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return c, func() { _ = c.Close() }, nil
}

func buildRegistry(ctx context.Context, cfg config.Config, log *slog.Logger) (*providers.Registry, error) {
	client := httpclient.NewOutbound(httpclient.DefaultTimeout, "places-cache-gateway/"+Version)

	adapters := []providers.Adapter{
		google.New(client, cfg.Google.BaseURL, cfg.Google.APIKey),
		foursquare.New(client, cfg.Foursquare.BaseURL, cfg.Foursquare.APIKey),
	}
	if cfg.Elastic.Enabled {
		la, err := local.New(client, local.Config{
			URL:      cfg.Elastic.URL,
			Index:    cfg.Elastic.Index,
			Username: cfg.Elastic.Username,
			Password: cfg.Elastic.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("local index: %w", err)
		}
		ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = la.EnsureIndex(ictx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("local index: %w", err)
		}
		adapters = append(adapters, la)
	}

	reg, err := providers.NewRegistry(cfg.DefaultProvider, adapters...)
	if err != nil {
		return nil, err
	}
	log.Info("providers ready", "names", reg.Names(), "primary", reg.Primary())
	return reg, nil
}

func pruneHotness(ctx context.Context, t *expdecay.Tracker, every time.Duration, tier string) {
	if every <= 0 {
		every = time.Minute
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.Prune(0.05)
			observability.SetHotKeysGauge(tier, t.Size())
		}
	}
}

func initTracing() (func(), error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			slog.Error("tracer shutdown", "err", err)
		}
	}, nil
}
