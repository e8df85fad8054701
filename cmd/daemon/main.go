// SPDX-License-Identifier: MIT

// Command daemon runs the dataset catalog service: it loads dataset
// manifests, refreshes the rendered catalog on a schedule and serves the
// catalog API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irfnrdh/tensorflow-datasets/internal/api"
	"github.com/irfnrdh/tensorflow-datasets/internal/builder"
	"github.com/irfnrdh/tensorflow-datasets/internal/cache"
	"github.com/irfnrdh/tensorflow-datasets/internal/config"
	"github.com/irfnrdh/tensorflow-datasets/internal/daemon"
	"github.com/irfnrdh/tensorflow-datasets/internal/download"
	"github.com/irfnrdh/tensorflow-datasets/internal/health"
	"github.com/irfnrdh/tensorflow-datasets/internal/jobs"
	"github.com/irfnrdh/tensorflow-datasets/internal/lint"
	tfdslog "github.com/irfnrdh/tensorflow-datasets/internal/log"
	"github.com/irfnrdh/tensorflow-datasets/internal/store"
	"github.com/irfnrdh/tensorflow-datasets/internal/telemetry"
	"github.com/irfnrdh/tensorflow-datasets/internal/version"
)

// staleBuildAge is when the readiness probe reports the catalog as degraded.
const staleBuildAge = 48 * time.Hour

// resolveConfigPath picks the config file: explicit via --config, otherwise
// ${TFDS_DATA_DIR}/config.yaml when it exists, otherwise none (ENV-only).
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvDataDir, ""))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err != nil {
		return ""
	}
	return autoPath
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe logging defaults until the config is loaded.
	tfdslog.Configure(tfdslog.Config{
		Level:   "info",
		Service: "tfds-catalog",
		Version: version.Version,
	})
	logger := tfdslog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	explicitConfigPath := strings.TrimSpace(*configPath)
	effectiveConfigPath := resolveConfigPath(explicitConfigPath)

	// Precedence: ENV > file > defaults.
	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	tfdslog.Configure(tfdslog.Config{
		Level:   cfg.LogLevel,
		Service: "tfds-catalog",
		Version: cfg.Version,
	})

	switch {
	case explicitConfigPath != "":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", explicitConfigPath).
			Msg("loaded configuration from file")
	case effectiveConfigPath != "":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file(auto)").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	default:
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("config", cfg.String()).
		Msg("starting tfds-catalog")

	if cfg.API.Token == "" {
		logger.Warn().
			Str("security", "weak").
			Msg("API token not configured, mutating routes are open; set TFDS_API_TOKEN")
	}

	// Hot reload: watch the config file and swap the holder on change.
	holder := config.NewHolder(cfg, config.NewLoader(effectiveConfigPath, version.Version), effectiveConfigPath)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.watcher_failed").
			Msg("failed to start config watcher")
	}
	defer holder.Stop()

	// Apply reloadable settings (log level) when the file changes.
	reloads := make(chan config.AppConfig, 1)
	holder.RegisterListener(reloads)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg := <-reloads:
				tfdslog.Configure(tfdslog.Config{
					Level:   newCfg.LogLevel,
					Service: "tfds-catalog",
					Version: newCfg.Version,
				})
				logger.Info().
					Str("event", "config.reload_applied").
					Str("log_level", newCfg.LogLevel).
					Msg("applied reloaded configuration")
			}
		}
	}()

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tfds-catalog",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Protocol,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SampleRatio,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialize tracing")
	}

	st, err := store.New(filepath.Join(cfg.DataDir, "catalog.db"))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "store.open_failed").
			Msg("failed to open catalog store")
	}

	policy, err := download.NewPolicy(cfg.Download.Allowlist)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "download.policy_invalid").
			Msg("invalid download allowlist")
	}
	ix, err := download.OpenIndex(filepath.Join(cfg.DataDir, "download-index"))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "download.index_failed").
			Msg("failed to open download index")
	}
	dm, err := download.NewManager(download.Options{
		Dir:         cfg.DownloadDir(),
		Index:       ix,
		Concurrency: cfg.Download.Concurrency,
		Attempts:    cfg.Download.Attempts,
		Timeout:     cfg.Download.Timeout,
		Backoff:     cfg.Download.Backoff,
		HostRPS:     cfg.Download.HostRPS,
		Policy:      policy,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "download.init_failed").
			Msg("failed to initialize download manager")
	}

	registry := builder.NewRegistry()
	if cfg.ManifestDir != "" {
		if err := builder.RegisterManifests(registry, cfg.ManifestDir); err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "manifest.load_failed").
				Str("dir", cfg.ManifestDir).
				Msg("failed to load dataset manifests")
		}
	}
	logger.Info().
		Int("datasets", registry.Len()).
		Strs("names", registry.Names()).
		Msg("dataset manifests loaded")

	linter, err := lint.New(lint.Options{Disabled: cfg.Lint.Disabled})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "lint.init_failed").
			Msg("invalid lint configuration")
	}

	pages := cache.New(cfg.Cache.Backend, cfg.Cache.RedisAddr, tfdslog.WithComponent("cache"))

	runner, err := jobs.NewRunner(jobs.RunnerOptions{
		Registry:    registry,
		Store:       st,
		Cache:       pages,
		Linter:      linter,
		Downloads:   dm,
		CatalogDir:  cfg.CatalogDir(),
		Concurrency: cfg.Refresh.Concurrency,
		CacheTTL:    cfg.Cache.TTL,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "runner.init_failed").
			Msg("failed to initialize refresh runner")
	}

	server, err := api.New(api.Options{
		Config:   cfg,
		Registry: registry,
		Store:    st,
		Cache:    pages,
		Runner:   runner,
		Linter:   linter,
		Health:   health.NewManager(version.Version),
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "api.init_failed").
			Msg("failed to initialize API server")
	}

	hm := server.HealthManager()
	hm.RegisterChecker(health.NewWritableDirChecker("catalog_dir", cfg.CatalogDir()))
	hm.RegisterChecker(health.NewPingChecker("catalog_store", st.Ping))
	hm.RegisterChecker(health.NewLastBuildChecker(staleBuildAge, runner.LastBuild))

	deps := daemon.Deps{
		Logger:         logger,
		Config:         cfg,
		APIHandler:     server.Routes(),
		Refresher:      runner,
		MetricsHandler: nil,
	}
	if cfg.Metrics.Enabled {
		deps.MetricsHandler = promhttp.Handler()
	}

	mgr, err := daemon.NewManager(cfg.ServerConfig(), deps)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation_failed").
			Msg("failed to create daemon manager")
	}

	// LIFO hooks: the index outlives the manager that writes to it.
	mgr.RegisterShutdownHook("tracing", tracing.Shutdown)
	mgr.RegisterShutdownHook("download-index", func(context.Context) error {
		return ix.Close()
	})
	mgr.RegisterShutdownHook("download-manager", func(context.Context) error {
		return dm.Close()
	})
	mgr.RegisterShutdownHook("catalog-store", func(context.Context) error {
		return st.Close()
	})

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.failed").
			Msg("daemon failed")
	}

	logger.Info().Msg("server exiting")
}
