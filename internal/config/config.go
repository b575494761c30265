package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Dispatch modes for the background colorization transition.
const (
	DispatchQueue  = "queue"
	DispatchInline = "inline"
)

// Blob store backends.
const (
	BlobSupabase = "supabase"
	BlobLocal    = "local"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	Storage   StorageConfig   `yaml:"storage"`
	Blob      BlobConfig      `yaml:"blob"`
	Model     ModelConfig     `yaml:"model"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Ephemeral EphemeralConfig `yaml:"ephemeral"`
	Stats     StatsConfig     `yaml:"stats"`

	Secrets Secrets `yaml:"-"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name               string `yaml:"name"`
	Durable            bool   `yaml:"durable"`
	AutoDelete         bool   `yaml:"auto_delete"`
	Exclusive          bool   `yaml:"exclusive"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the stats cache connection. An empty address disables caching.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsPort     int           `yaml:"metrics_port"`
}

// StorageConfig tunes the retry wrapper around database and blob calls.
type StorageConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	MaxConcurrency int64         `yaml:"max_concurrency"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
}

// BlobConfig selects and configures the blob store.
type BlobConfig struct {
	Backend         string `yaml:"backend"`
	OriginalBucket  string `yaml:"original_bucket"`
	ColorizedBucket string `yaml:"colorized_bucket"`
	LocalDir        string `yaml:"local_dir"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

// ModelConfig configures the generative image model.
type ModelConfig struct {
	Name           string        `yaml:"name"`
	Temperature    float32       `yaml:"temperature"`
	MaxImageEdge   int           `yaml:"max_image_edge"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DispatchConfig selects how the background transition is scheduled.
type DispatchConfig struct {
	Mode string `yaml:"mode"`
}

// EphemeralConfig configures the no-persistence flow.
type EphemeralConfig struct {
	ExpiresIn        time.Duration `yaml:"expires_in"`
	AnalyticsTimeout time.Duration `yaml:"analytics_timeout"`
}

// StatsConfig configures the aggregate stats endpoint.
type StatsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Secrets are never read from the YAML file.
type Secrets struct {
	GoogleAPIKey       string `envconfig:"GOOGLE_API_KEY"`
	SupabaseURL        string `envconfig:"SUPABASE_URL_RM"`
	SupabaseServiceKey string `envconfig:"SUPABASE_SERVICE_KEY_RM"`
	SupabaseAPIKey     string `envconfig:"SUPABASE_API_KEY_RM"`
	DatabasePassword   string `envconfig:"DATABASE_PASSWORD"`
	RabbitMQPassword   string `envconfig:"RABBITMQ_PASSWORD"`
	RedisPassword      string `envconfig:"REDIS_PASSWORD"`
}

// SupabaseKey prefers the service role key and falls back to the anon key.
func (s Secrets) SupabaseKey() string {
	if s.SupabaseServiceKey != "" {
		return s.SupabaseServiceKey
	}
	return s.SupabaseAPIKey
}

// LoadEnvFiles loads .env.{env} from dir, falling back to .env. Values in the
// file override the process environment. It returns the file used, or "".
func LoadEnvFiles(dir, env string) (string, error) {
	if env == "" {
		env = "development"
	}

	candidates := []string{
		filepath.Join(dir, ".env."+env),
		filepath.Join(dir, ".env"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return "", fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return path, nil
	}

	return "", nil
}

// Load reads and parses the configuration file, then applies defaults and
// environment secrets.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := envconfig.Process("", &config.Secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}

	config.applySecrets()
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applySecrets() {
	if c.Secrets.DatabasePassword != "" {
		c.Database.Password = c.Secrets.DatabasePassword
	}
	if c.Secrets.RabbitMQPassword != "" {
		c.RabbitMQ.Password = c.Secrets.RabbitMQPassword
	}
	if c.Secrets.RedisPassword != "" {
		c.Redis.Password = c.Secrets.RedisPassword
	}
}

func (c *Config) applyDefaults() {
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 20 << 20
	}
	if c.Storage.MaxRetries <= 0 {
		c.Storage.MaxRetries = 3
	}
	if c.Storage.BackoffBase <= 0 {
		c.Storage.BackoffBase = 250 * time.Millisecond
	}
	if c.Storage.MaxConcurrency <= 0 {
		c.Storage.MaxConcurrency = 32
	}
	if c.Storage.CallTimeout <= 0 {
		c.Storage.CallTimeout = 30 * time.Second
	}
	if c.Blob.Backend == "" {
		c.Blob.Backend = BlobSupabase
	}
	if c.Blob.OriginalBucket == "" {
		c.Blob.OriginalBucket = "original-images"
	}
	if c.Blob.ColorizedBucket == "" {
		c.Blob.ColorizedBucket = "colorized-images"
	}
	if c.Model.Name == "" {
		c.Model.Name = "gemini-2.5-flash-image-preview"
	}
	if c.Model.Temperature <= 0 {
		c.Model.Temperature = 0.2
	}
	if c.Model.MaxImageEdge <= 0 {
		c.Model.MaxImageEdge = 2048
	}
	if c.Model.RequestTimeout <= 0 {
		c.Model.RequestTimeout = 2 * time.Minute
	}
	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = DispatchQueue
	}
	if c.Ephemeral.ExpiresIn <= 0 {
		c.Ephemeral.ExpiresIn = 10 * time.Minute
	}
	if c.Ephemeral.AnalyticsTimeout <= 0 {
		c.Ephemeral.AnalyticsTimeout = 10 * time.Second
	}
	if c.Stats.CacheTTL <= 0 {
		c.Stats.CacheTTL = time.Minute
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateCommon(); err != nil {
		return err
	}

	switch c.Dispatch.Mode {
	case DispatchQueue:
		return c.validateRabbitMQ()
	case DispatchInline:
		return nil
	default:
		return fmt.Errorf("invalid dispatch mode: %q (must be %q or %q)", c.Dispatch.Mode, DispatchQueue, DispatchInline)
	}
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.MetricsPort != 0 && (c.Worker.MetricsPort < MinPort || c.Worker.MetricsPort > MaxPort) {
		return fmt.Errorf("invalid worker metrics port: %d (must be between %d and %d)", c.Worker.MetricsPort, MinPort, MaxPort)
	}

	return nil
}

func (c *Config) validateCommon() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	switch c.Blob.Backend {
	case BlobSupabase:
		if c.Secrets.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL_RM is required for the supabase blob backend")
		}
		if c.Secrets.SupabaseKey() == "" {
			return fmt.Errorf("SUPABASE_SERVICE_KEY_RM or SUPABASE_API_KEY_RM is required for the supabase blob backend")
		}
	case BlobLocal:
		if c.Blob.LocalDir == "" {
			return fmt.Errorf("blob local_dir is required for the local blob backend")
		}
		if c.Blob.PublicBaseURL == "" {
			return fmt.Errorf("blob public_base_url is required for the local blob backend")
		}
	default:
		return fmt.Errorf("invalid blob backend: %q", c.Blob.Backend)
	}

	if c.Secrets.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
