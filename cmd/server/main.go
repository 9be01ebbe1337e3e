// Command server runs the sensor ingestion pipeline.
//
// # Usage
//
//	server --config config.yaml --listen :8080
//
// # Configuration
//
// The server is configured via (in order of precedence):
// - Command-line flags
// - Environment variables (HOT_STORE_*, STREAM_BROKERS, REDIS_URL, ...)
// - YAML config file
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/sensor-pipeline/internal/api"
	"github.com/plantops/sensor-pipeline/internal/cache"
	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/internal/detector"
	"github.com/plantops/sensor-pipeline/internal/dispatch"
	"github.com/plantops/sensor-pipeline/internal/fanout"
	"github.com/plantops/sensor-pipeline/internal/metrics"
	"github.com/plantops/sensor-pipeline/internal/objectstore"
	"github.com/plantops/sensor-pipeline/internal/secrets"
	"github.com/plantops/sensor-pipeline/internal/service"
	"github.com/plantops/sensor-pipeline/internal/store"
	"github.com/plantops/sensor-pipeline/internal/stream"
	"github.com/plantops/sensor-pipeline/internal/sweep"
	"github.com/plantops/sensor-pipeline/internal/tasks"
	"github.com/plantops/sensor-pipeline/internal/tenant"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("sensor-pipeline v0.1.0")
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if err := run(logger, *configPath, *listen); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, listen string) error {
	cfg, err := loadConfig(configPath, listen)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := fillSecrets(ctx, cfg, logger); err != nil {
		return err
	}

	// Relational tiers. Schema initialization is idempotent and runs on
	// every start.
	hotPool, err := store.NewPool(ctx, cfg.HotStore.DSN(), cfg.HotStore.PoolSize)
	if err != nil {
		return fmt.Errorf("hot tier: %w", err)
	}
	defer hotPool.Close()

	var warmPool *pgxpool.Pool
	if cfg.WarmStore.DSN() == cfg.HotStore.DSN() {
		warmPool = hotPool
	} else {
		warmPool, err = store.NewPool(ctx, cfg.WarmStore.DSN(), cfg.WarmStore.PoolSize)
		if err != nil {
			return fmt.Errorf("warm tier: %w", err)
		}
		defer warmPool.Close()
	}

	hotStore := store.NewHotStore(logger)
	if err := hotStore.InitSchema(ctx, hotPool); err != nil {
		return err
	}
	warmStore := store.NewWarmStore(logger)
	if err := warmStore.InitSchema(ctx, warmPool); err != nil {
		return err
	}

	// Cache is degraded-mode optional: without it the response cache,
	// usage counters, and usage-based promotion are disabled.
	var cacheClient *cache.Cache
	if cfg.Redis.URL != "" {
		cacheClient, err = cache.New(cfg.Redis.URL, cfg.Redis.KeyPrefix, logger)
		if err != nil {
			logger.Warn("cache unavailable, running without it", "error", err)
			cacheClient = nil
		}
	}

	archiver, err := objectstore.New(cfg.ObjectStore, cfg.Region, logger)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	publisher, err := stream.New(stream.Config{
		Brokers:       cfg.Stream.Brokers,
		QueueCapacity: config.PublishQueueCapacity,
		TLS:           cfg.Production(),
	}, logger)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	var usage dataplane.UsageStatsProvider
	if cacheClient != nil {
		usage = dataplane.NewRedisUsageStats(cacheClient)
	}
	selector := dataplane.NewPoolSelector(dataplane.Config{
		SharedHot:     hotPool,
		SharedWarm:    warmPool,
		SharedBucket:  cfg.ObjectStore.Bucket,
		PriorityTopic: cfg.Stream.PriorityTopic,
		SharedTopic:   cfg.Stream.SharedTopic,
		Usage:         usage,
	}, logger)
	defer selector.Close()

	directory, err := buildDirectory(cfg, logger)
	if err != nil {
		return err
	}
	var quota tenant.UsageCounter
	if cacheClient != nil {
		quota = cacheClient
	}
	resolver := tenant.NewResolver(directory, quota, cfg.Region, logger)

	m := metrics.New()
	pool := tasks.NewPool(config.TaskWorkerCount, config.TaskQueueCapacity, logger)
	dispatcher := dispatch.New(publisher, m, cfg.Alerting.DashboardURL, logger)

	deps := service.Deps{
		Resolver:   resolver,
		Selector:   selector,
		Detector:   detector.New(cfg.Thresholds),
		Dispatcher: dispatcher,
		Fanout:     fanout.New(hotStore, warmStore, archiver, m, logger),
		Publisher:  publisher,
		Tasks:      pool,
		Hot:        hotStore,
		Warm:       warmStore,
		Archive:    archiver,
		Metrics:    m,
		Logger:     logger,
	}
	if cacheClient != nil {
		deps.Cache = cacheClient
	}
	svc := service.New(deps)

	// The liveness sweep needs the full tenant population; a directory
	// that cannot enumerate disables it.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if dir, ok := directory.(sweep.Directory); ok {
		sweepCfg := sweep.Config{
			Directory:  dir,
			Selector:   selector,
			Warm:       warmStore,
			Dispatcher: dispatcher,
			Logger:     logger,
		}
		if cacheClient != nil {
			sweepCfg.Cache = cacheClient
		}
		go sweep.New(sweepCfg).Run(sweepCtx)
	} else {
		logger.Info("tenant directory does not support enumeration, offline sweep disabled")
	}

	apiServer := api.NewServer(api.Config{
		Service:        svc,
		Status:         metrics.NewStatusCollector(svc),
		MetricsHandler: m.Handler(),
		PlatformDomain: cfg.Tenancy.PlatformDomain,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"listen", cfg.Server.Listen,
			"region", cfg.Region,
			"environment", cfg.Environment)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	// Shutdown order: stop accepting requests, drain the background work
	// those requests queued, then flush the publisher.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	stopSweep()
	pool.Stop(config.TaskDrainTimeout)
	publisher.Close(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}

func loadConfig(path, listen string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnvOverrides()
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// fillSecrets resolves credentials the config file left blank. Missing
// secrets are not fatal here; the component that needs one fails on
// connect with a clearer error.
func fillSecrets(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	source, err := secrets.NewSource(secrets.ConfigFromEnv(), logger)
	if err != nil {
		return fmt.Errorf("secrets backend: %w", err)
	}
	defer source.Close()

	fill := func(target *string, name string) {
		if *target != "" {
			return
		}
		val, err := source.Get(ctx, name)
		if err != nil {
			if !errors.Is(err, secrets.ErrNotFound) {
				logger.Warn("secret lookup failed", "name", name, "error", err)
			}
			return
		}
		*target = val
	}

	fill(&cfg.HotStore.Password, "hot-store.password")
	fill(&cfg.WarmStore.Password, "warm-store.password")
	fill(&cfg.ObjectStore.AccessKey, "object-store.access-key")
	fill(&cfg.ObjectStore.SecretKey, "object-store.secret-key")
	fill(&cfg.Tenancy.DirectoryToken, "tenant-directory.token")
	return nil
}

func buildDirectory(cfg *config.Config, logger *slog.Logger) (tenant.Directory, error) {
	if cfg.Tenancy.DirectoryURL != "" {
		return tenant.NewHTTPDirectory(tenant.DirectoryConfig{
			BaseURL:   cfg.Tenancy.DirectoryURL,
			AuthToken: cfg.Tenancy.DirectoryToken,
		}, logger), nil
	}
	dir, err := tenant.NewStaticDirectory(cfg.Tenancy.StaticFile, logger)
	if err != nil {
		return nil, fmt.Errorf("tenant file: %w", err)
	}
	return dir, nil
}
