// Command geoimport loads a GeoJSON FeatureCollection file into a campus scope
// and prints the import report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/campus-geo/internal/cache/cellindex"
	"github.com/mohammed-shakir/campus-geo/internal/cache/entitystore"
	"github.com/mohammed-shakir/campus-geo/internal/cache/redisstore"
	"github.com/mohammed-shakir/campus-geo/internal/centroid"
	"github.com/mohammed-shakir/campus-geo/internal/core/config"
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/events"
	"github.com/mohammed-shakir/campus-geo/internal/importer"
	"github.com/mohammed-shakir/campus-geo/internal/logger"
	h3mapper "github.com/mohammed-shakir/campus-geo/internal/mapper/h3"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		file        = flag.String("file", "", "path to a GeoJSON FeatureCollection ('-' for stdin)")
		scopeFlag   = flag.String("scope", "", "campus scope id")
		kindFlag    = flag.String("kind", "", "entity kind: building|path|open_space|poi")
		createScope = flag.Bool("create-scope", false, "register the scope if it does not exist")
		missingName = flag.String("missing-name", "", "missing name policy: error|auto (default depends on kind)")
		labelPrefix = flag.String("label-prefix", "", "label prefix for -missing-name=auto")
		timeout     = flag.Duration("timeout", 5*time.Minute, "overall import timeout")
	)
	flag.Parse()

	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Service:   "geoimport",
		Component: "cli",
	}, os.Stderr)
	log := logger.NewSlog(&zl)

	scope := model.ScopeID(strings.TrimSpace(*scopeFlag))
	kind, err := model.ParseKind(*kindFlag)
	if *file == "" || scope == "" || err != nil {
		fmt.Fprintln(os.Stderr, "usage: geoimport -file f.geojson -scope S -kind building [-create-scope]")
		if err != nil && *kindFlag != "" {
			fmt.Fprintln(os.Stderr, err)
		}
		return 2
	}
	policy, err := importer.ParseNamePolicy(*missingName, *labelPrefix, kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	strategy, err := centroid.ParseStrategy(cfg.CentroidStrategy)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	payload, err := readPayload(*file)
	if err != nil {
		log.Error("read input", "file", *file, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	rc, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("redis init failed", "addr", cfg.RedisAddr, "err", err)
		return 1
	}
	defer func() { _ = rc.Close() }()

	store := entitystore.New(rc, cellindex.NewRedisIndex(rc), h3mapper.New(), entitystore.Config{
		H3Res:    cfg.H3Res,
		Centroid: strategy,
	}, log)
	if *createScope {
		if err := store.CreateScope(ctx, scope); err != nil {
			log.Error("create scope", "scope", scope, "err", err)
			return 1
		}
	}

	pipeline := importer.New(store, importer.Config{
		Workers:              cfg.ImportWorkers,
		FingerprintPrecision: cfg.FingerprintPrecision,
	}, log)
	rep, err := pipeline.Run(ctx, payload, scope, kind, store.Put, importer.WithNamePolicy(policy))
	if err != nil {
		log.Error("import failed", "err", err)
		return 1
	}

	if cfg.Events.Enabled && rep.Imported > 0 {
		publish(cfg, scope, kind, rep.ImportedSlugs(), log)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Error("write report", "err", err)
		return 1
	}
	if rep.Errors > 0 {
		return 3
	}
	return 0
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

// publish tells running search instances to drop their cached catalogs.
func publish(cfg config.Config, scope model.ScopeID, kind model.Kind, slugs []string, log *slog.Logger) {
	pub, err := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, "geoimport-"+cfg.InstanceID, 1, log)
	if err != nil {
		log.Warn("import event not published", "err", err)
		return
	}
	if !pub.PublishImport(scope, kind, slugs) {
		log.Warn("import event dropped")
	}
	if err := pub.Close(); err != nil {
		log.Warn("kafka publisher close", "err", err)
	}
}
