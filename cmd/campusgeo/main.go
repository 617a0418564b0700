package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/campus-geo/internal/cache/cellindex"
	"github.com/mohammed-shakir/campus-geo/internal/cache/entitystore"
	"github.com/mohammed-shakir/campus-geo/internal/cache/redisstore"
	"github.com/mohammed-shakir/campus-geo/internal/centroid"
	"github.com/mohammed-shakir/campus-geo/internal/core/config"
	"github.com/mohammed-shakir/campus-geo/internal/core/health"
	"github.com/mohammed-shakir/campus-geo/internal/core/observability"
	"github.com/mohammed-shakir/campus-geo/internal/core/router"
	"github.com/mohammed-shakir/campus-geo/internal/core/server"
	"github.com/mohammed-shakir/campus-geo/internal/events"
	"github.com/mohammed-shakir/campus-geo/internal/importer"
	"github.com/mohammed-shakir/campus-geo/internal/logger"
	h3mapper "github.com/mohammed-shakir/campus-geo/internal/mapper/h3"
	"github.com/mohammed-shakir/campus-geo/internal/metrics"
	"github.com/mohammed-shakir/campus-geo/internal/search"
	invkafka "github.com/mohammed-shakir/campus-geo/pkg/invalidation/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "campusgeo",
		Component: "api",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	strategy, err := centroid.ParseStrategy(cfg.CentroidStrategy)
	if err != nil {
		appLog.Error("invalid CENTROID_STRATEGY", "err", err)
		return 2
	}

	p := metrics.Init(metrics.Config{
		Service: "campusgeo",
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), cfg.MetricsEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc, err := redisstore.New(ctx, cfg.RedisAddr,
		redisstore.WithReadTimeout(cfg.RedisOpTimeout),
		redisstore.WithWriteTimeout(cfg.RedisOpTimeout),
	)
	if err != nil {
		appLog.Error("redis init failed", "addr", cfg.RedisAddr, "err", err)
		return 1
	}
	defer func() { _ = rc.Close() }()

	store := entitystore.New(rc, cellindex.NewRedisIndex(rc), h3mapper.New(), entitystore.Config{
		H3Res:    cfg.H3Res,
		Centroid: strategy,
	}, appLog)

	svc, err := search.New(store, search.Config{
		CacheSize:    cfg.CatalogCacheSize,
		DefaultLimit: cfg.SearchDefaultLimit,
		MaxLimit:     cfg.SearchMaxLimit,
		Centroid:     strategy,
	}, appLog)
	if err != nil {
		appLog.Error("search init failed", "err", err)
		return 1
	}

	pipeline := importer.New(store, importer.Config{
		Workers:              cfg.ImportWorkers,
		FingerprintPrecision: cfg.FingerprintPrecision,
		MaxFeatures:          cfg.ImportMaxFeatures,
	}, appLog)

	deps := router.Deps{
		Log:          appLog,
		Scopes:       store,
		Importer:     pipeline,
		Sink:         store.Put,
		Search:       svc,
		MaxBodyBytes: cfg.ImportMaxBytes,
	}

	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, cfg.InstanceID, cfg.Events.QueueSize, appLog)
		if err != nil {
			appLog.Error("kafka publisher init failed", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Error("kafka publisher close", "err", err)
			}
		}()
		deps.Events = pub
	}

	inv := invkafka.New(invkafka.FromEnv(), svc, invkafka.Options{
		Logger:   appLog,
		Register: p.Registerer(),
	})
	if err := inv.Start(ctx); err != nil {
		appLog.Error("invalidation runner start failed", "err", err)
		return 1
	}
	defer inv.Stop()

	var rr health.ReadinessReporter
	if inv.Enabled() {
		rr = inv
	}
	ready := health.Readiness(cfg.RedisOpTimeout, []health.Check{{Name: "redis", Fn: rc.Ping}}, rr)

	appLog.Info("starting campusgeo",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr,
		"h3_res", cfg.H3Res,
		"centroid", strategy,
		"events", cfg.Events.Enabled,
		"invalidation", inv.Enabled(),
	)

	h := server.Handler(appLog, deps, server.Ops{Metrics: p.Handler(), Ready: ready})
	if err := server.Run(ctx, cfg.Addr, appLog, h); err != nil {
		appLog.Error("server exited", "err", err)
		return 1
	}
	appLog.Info("campusgeo stopped")
	return 0
}
