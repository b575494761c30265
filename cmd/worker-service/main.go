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
	"time"

	"github.com/cuongbtq/colorize-be/internal/analytics"
	"github.com/cuongbtq/colorize-be/internal/bootstrap"
	"github.com/cuongbtq/colorize-be/internal/config"
	"github.com/cuongbtq/colorize-be/internal/lifecycle"
	"github.com/cuongbtq/colorize-be/internal/worker"
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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("env_file", envFile),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL client
	dbClient, err := bootstrap.NewPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appLogger.Info("Database connection established")

	metrics, metricsHandler := bootstrap.NewMetrics()
	executor := bootstrap.NewExecutor(&cfg.Storage, appLogger.Logger, metrics)

	blobStore, err := bootstrap.NewBlobStore(cfg)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to initialize blob store: %w", err), dbClient.Close())
	}

	colorizer, err := bootstrap.NewColorizer(ctx, cfg, appLogger.Logger)
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}

	// Initialize RabbitMQ client
	rabbitClient, err := bootstrap.NewRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to initialize RabbitMQ: %w", err), dbClient.Close())
	}
	appLogger.Info("RabbitMQ connection established")

	cleanup := func() error {
		return multierr.Combine(rabbitClient.Close(), dbClient.Close())
	}

	tracker := lifecycle.NewTracker(lifecycle.Deps{
		Repo:       lifecycle.NewPostgresRepository(dbClient.GetDB()),
		Blobs:      blobStore,
		Colorizer:  colorizer,
		Executor:   executor,
		Dispatcher: lifecycle.NewQueueDispatcher(rabbitClient),
		Events:     analytics.NewRecorder(analytics.NewPostgresStore(dbClient.GetDB()), executor),
		Metrics:    metrics,
		Logger:     appLogger.Logger,
	}, lifecycle.Buckets{
		Original:  cfg.Blob.OriginalBucket,
		Colorized: cfg.Blob.ColorizedBucket,
	})

	// Expose metrics
	var metricsServer *http.Server
	if cfg.Worker.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("Metrics server failed", slog.String("error", err.Error()))
			}
		}()
		appLogger.Info("Metrics server started", slog.String("address", metricsServer.Addr))
	}

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Consumer:      rabbitClient,
		Processor:     tracker,
		Metrics:       metrics,
		QueueName:     cfg.RabbitMQ.Queue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// A broker-side close drains in-flight jobs and exits non-zero.
	var errs error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker stopped consuming", slog.String("error", err.Error()))
		errs = err
	}

	// Cancel context to stop consuming
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, unacked jobs will be redelivered")
	}

	if metricsServer != nil {
		errs = multierr.Append(errs, metricsServer.Shutdown(shutdownCtx))
	}
	errs = multierr.Append(errs, cleanup())
	if errs != nil {
		return errs
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
