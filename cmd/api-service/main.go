package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/colorize-be/internal/analytics"
	"github.com/cuongbtq/colorize-be/internal/api/handler"
	"github.com/cuongbtq/colorize-be/internal/api/router"
	"github.com/cuongbtq/colorize-be/internal/bootstrap"
	"github.com/cuongbtq/colorize-be/internal/config"
	"github.com/cuongbtq/colorize-be/internal/ephemeral"
	"github.com/cuongbtq/colorize-be/internal/lifecycle"
	"github.com/cuongbtq/colorize-be/shared/rabbitmq"
	"github.com/cuongbtq/colorize-be/shared/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	envFile, err := config.LoadEnvFiles(".", os.Getenv("ENV"))
	if err != nil {
		return err
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("env_file", envFile),
		slog.String("dispatch_mode", cfg.Dispatch.Mode),
	)

	ctx := context.Background()

	// Initialize PostgreSQL client
	dbClient, err := bootstrap.NewPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appLogger.Info("Database connection established")

	var closers []func() error
	closers = append(closers, dbClient.Close)

	metrics, metricsHandler := bootstrap.NewMetrics()
	executor := bootstrap.NewExecutor(&cfg.Storage, appLogger.Logger, metrics)

	blobStore, err := bootstrap.NewBlobStore(cfg)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to initialize blob store: %w", err), closeAll(closers))
	}

	colorizer, err := bootstrap.NewColorizer(ctx, cfg, appLogger.Logger)
	if err != nil {
		return multierr.Append(err, closeAll(closers))
	}

	// Optional stats cache
	var statsCache analytics.Cache
	redisClient, err := bootstrap.NewRedis(ctx, &cfg.Redis, appLogger.Logger)
	if err != nil {
		appLogger.Warn("Redis unavailable, stats are served uncached", slog.String("error", err.Error()))
	} else if redisClient != nil {
		statsCache = redisClient
		closers = append(closers, redisClient.Close)
	}

	eventStore := analytics.NewPostgresStore(dbClient.GetDB())
	recorder := analytics.NewRecorder(eventStore, executor)

	deps := lifecycle.Deps{
		Repo:      lifecycle.NewPostgresRepository(dbClient.GetDB()),
		Blobs:     blobStore,
		Colorizer: colorizer,
		Executor:  executor,
		Events:    recorder,
		Metrics:   metrics,
		Logger:    appLogger.Logger,
	}

	// Initialize RabbitMQ client in queue mode; inline mode runs jobs in-process
	var rabbitClient *rabbitmq.Client
	if cfg.Dispatch.Mode == config.DispatchQueue {
		rabbitClient, err = bootstrap.NewRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return multierr.Append(fmt.Errorf("failed to initialize RabbitMQ: %w", err), closeAll(closers))
		}
		closers = append(closers, rabbitClient.Close)
		deps.Dispatcher = lifecycle.NewQueueDispatcher(rabbitClient)
		appLogger.Info("RabbitMQ connection established")
	}

	tracker := lifecycle.NewTracker(deps, lifecycle.Buckets{
		Original:  cfg.Blob.OriginalBucket,
		Colorized: cfg.Blob.ColorizedBucket,
	})

	ephemeralService := ephemeral.NewService(colorizer, recorder, ephemeral.Options{
		ExpiresIn:        cfg.Ephemeral.ExpiresIn,
		AnalyticsTimeout: cfg.Ephemeral.AnalyticsTimeout,
	}, metrics, appLogger.Logger)

	statsService := analytics.NewStatsService(eventStore, executor, statsCache,
		redis.Key("stats", "totals"), cfg.Stats.CacheTTL, appLogger.Logger)

	// Initialize router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	routerCfg := router.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metricsHandler,
	}
	if cfg.Blob.Backend == config.BlobLocal {
		routerCfg.FilesDir = cfg.Blob.LocalDir
		routerCfg.FilesPrefix = bootstrap.FilesPrefix
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:    appLogger.Logger,
		Tracker:   tracker,
		Ephemeral: ephemeralService,
		Stats:     statsService,
		Database:  dbClient,
		App: handler.AppInfo{
			Name:        cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
		},
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, routerCfg)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.String("error", err.Error()))
		return multierr.Append(err, closeAll(closers))
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		appLogger.Error("Server forced to shutdown", slog.String("error", shutdownErr.Error()))
	}

	// in-process work finishes before its store handles close
	waitOrTimeout(shutdownCtx, appLogger.Logger, func() {
		if inline, ok := tracker.Dispatcher().(*lifecycle.InlineDispatcher); ok {
			inline.Wait()
		}
		ephemeralService.Wait()
	})

	if err := multierr.Append(shutdownErr, closeAll(closers)); err != nil {
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// closeAll closes resources in reverse order of acquisition.
func closeAll(closers []func() error) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	return err
}

func waitOrTimeout(ctx context.Context, logger *slog.Logger, wait func()) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Timed out waiting for background work")
	}
}
