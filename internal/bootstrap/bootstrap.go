// Package bootstrap builds the infrastructure shared by the api and worker
// services from the loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/colorize-be/internal/blob"
	"github.com/cuongbtq/colorize-be/internal/colorize"
	"github.com/cuongbtq/colorize-be/internal/config"
	"github.com/cuongbtq/colorize-be/internal/durable"
	"github.com/cuongbtq/colorize-be/internal/metrics"
	"github.com/cuongbtq/colorize-be/shared/logger"
	"github.com/cuongbtq/colorize-be/shared/postgresql"
	"github.com/cuongbtq/colorize-be/shared/rabbitmq"
	"github.com/cuongbtq/colorize-be/shared/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FilesPrefix is where the local blob backend is served by the api service.
const FilesPrefix = "/files"

// NewLogger initializes and configures the application logger
func NewLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// NewPostgreSQL connects to the database and applies migrations when
// auto_migrate is set.
func NewPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

// RabbitMQConfig maps the YAML settings onto the client config.
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// NewRabbitMQ initializes the RabbitMQ client
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(RabbitMQConfig(cfg), logger)
}

// NewRedis returns nil without error when no address is configured.
func NewRedis(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, nil
	}
	return redis.NewClient(ctx, &redis.Config{
		Address:  cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, logger)
}

// NewBlobStore builds the configured blob backend.
func NewBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case config.BlobSupabase:
		return blob.NewSupabaseStore(cfg.Secrets.SupabaseURL, cfg.Secrets.SupabaseKey(),
			blob.WithHTTPClient(&http.Client{Timeout: cfg.Storage.CallTimeout}),
		)
	case config.BlobLocal:
		return blob.NewLocalStore(cfg.Blob.LocalDir, cfg.Blob.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("invalid blob backend: %q", cfg.Blob.Backend)
	}
}

// NewColorizer connects the Gemini model and wraps it in a Colorizer.
func NewColorizer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*colorize.Colorizer, error) {
	model, err := colorize.NewGeminiModel(ctx, cfg.Secrets.GoogleAPIKey, cfg.Model.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return colorize.New(model, ColorizerOptions(&cfg.Model), logger), nil
}

// ColorizerOptions maps the model settings onto colorizer options.
func ColorizerOptions(cfg *config.ModelConfig) colorize.Options {
	return colorize.Options{
		Prompt:       colorize.RestorationPrompt,
		Temperature:  cfg.Temperature,
		MaxImageEdge: cfg.MaxImageEdge,
		Timeout:      cfg.RequestTimeout,
	}
}

// NewExecutor builds the retry wrapper for database and blob calls.
func NewExecutor(cfg *config.StorageConfig, logger *slog.Logger, m *metrics.Metrics) *durable.Executor {
	return durable.NewExecutor(durable.Options{
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase,
		MaxConcurrency: cfg.MaxConcurrency,
		CallTimeout:    cfg.CallTimeout,
	}, logger, m)
}

// NewMetrics registers the service collectors plus the Go runtime and process
// collectors on a fresh registry and returns the handler exposing it.
func NewMetrics() (*metrics.Metrics, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
