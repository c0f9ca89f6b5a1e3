package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Source    SourceConfig
	Ingestion IngestionConfig
	Worker    WorkerConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// SourceConfig holds settings for the external system of record
type SourceConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	PageSize       int
	MaxAttempts    int    // attempt ceiling inside the write client
	BackoffBase    time.Duration
}

// IngestionConfig holds ingestion/transformation batch settings
type IngestionConfig struct {
	ChunkSize          int // raw records persisted per transaction
	TransformBatchSize int // raw records transformed per transaction
	ErrorSampleSize    int // per-batch error sample bound
}

// TelemetryConfig holds OpenTelemetry tracing settings
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTLP gRPC endpoint, host:port
	SamplingRatio     float64 // 0.0 to 1.0
	Insecure          bool    // plaintext connection to the collector
	TraceDB           bool    // per-query spans via the gorm plugin
	LogFullSQL        bool    // include SQL statements in spans, dev only
}

// WorkerConfig holds write sync worker settings
type WorkerConfig struct {
	Enabled        bool
	Interval       time.Duration // delay between runs
	BatchSize      int           // queue items claimed per run
	ChunkSize      int           // concurrent items per organization chunk
	ChunkDelay     time.Duration // pause between chunks
	MaxRetries     int
	BackoffBase    time.Duration
	RunLockTTL     time.Duration // Redis run lock expiry
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g., SYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Missing config file is fine; defaults and env vars apply
	}

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Source: SourceConfig{
			BaseURL:     v.GetString("source.base_url"),
			APIKey:      v.GetString("source.api_key"),
			Timeout:     v.GetDuration("source.timeout"),
			PageSize:    v.GetInt("source.page_size"),
			MaxAttempts: v.GetInt("source.max_attempts"),
			BackoffBase: v.GetDuration("source.backoff_base"),
		},
		Ingestion: IngestionConfig{
			ChunkSize:          v.GetInt("ingestion.chunk_size"),
			TransformBatchSize: v.GetInt("ingestion.transform_batch_size"),
			ErrorSampleSize:    v.GetInt("ingestion.error_sample_size"),
		},
		Worker: WorkerConfig{
			Enabled:     v.GetBool("worker.enabled"),
			Interval:    v.GetDuration("worker.interval"),
			BatchSize:   v.GetInt("worker.batch_size"),
			ChunkSize:   v.GetInt("worker.chunk_size"),
			ChunkDelay:  v.GetDuration("worker.chunk_delay"),
			MaxRetries:  v.GetInt("worker.max_retries"),
			BackoffBase: v.GetDuration("worker.backoff_base"),
			RunLockTTL:  v.GetDuration("worker.run_lock_ttl"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			Insecure:          v.GetBool("telemetry.insecure"),
			TraceDB:           v.GetBool("telemetry.trace_db"),
			LogFullSQL:        v.GetBool("telemetry.log_full_sql"),
		},
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "syncline-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "syncline"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 30 * time.Second
	}
	if cfg.Source.PageSize == 0 {
		cfg.Source.PageSize = 200
	}
	if cfg.Source.MaxAttempts == 0 {
		cfg.Source.MaxAttempts = 3
	}
	if cfg.Source.BackoffBase == 0 {
		cfg.Source.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Ingestion.ChunkSize == 0 {
		cfg.Ingestion.ChunkSize = 500
	}
	if cfg.Ingestion.TransformBatchSize == 0 {
		cfg.Ingestion.TransformBatchSize = 200
	}
	if cfg.Ingestion.ErrorSampleSize == 0 {
		cfg.Ingestion.ErrorSampleSize = 20
	}
	if cfg.Worker.Interval == 0 {
		cfg.Worker.Interval = 30 * time.Second
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 100
	}
	if cfg.Worker.ChunkSize == 0 {
		cfg.Worker.ChunkSize = 5
	}
	if cfg.Worker.ChunkDelay == 0 {
		cfg.Worker.ChunkDelay = time.Second
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.BackoffBase == 0 {
		cfg.Worker.BackoffBase = time.Second
	}
	if cfg.Worker.RunLockTTL == 0 {
		cfg.Worker.RunLockTTL = 10 * time.Minute
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
}

// Validate checks settings that have no sensible fallback
func (c *Config) Validate() error {
	if c.Worker.ChunkSize <= 0 {
		return fmt.Errorf("worker.chunk_size must be positive")
	}
	if c.Worker.BatchSize < c.Worker.ChunkSize {
		return fmt.Errorf("worker.batch_size must be at least worker.chunk_size")
	}
	if c.Ingestion.ChunkSize <= 0 || c.Ingestion.TransformBatchSize <= 0 {
		return fmt.Errorf("ingestion chunk sizes must be positive")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be positive")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsProduction returns true when running in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
