package persistence

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/syncline/backend/internal/infrastructure/config"
	"github.com/syncline/backend/internal/infrastructure/telemetry"
)

// Database wraps the shared GORM connection pool. Every repository borrows
// from this pool; the mirror and write queue tables see the bulk of the
// traffic, so pool limits come straight from configuration.
type Database struct {
	DB *gorm.DB
}

// Option tunes how Open establishes the connection.
type Option func(*openSettings)

type openSettings struct {
	logLevel    gormlogger.LogLevel
	queryLogger gormlogger.Interface
	tracing     *telemetry.DBTracingPlugin
}

// WithLogLevel raises GORM's log verbosity from the silent default.
func WithLogLevel(level gormlogger.LogLevel) Option {
	return func(s *openSettings) {
		s.logLevel = level
	}
}

// WithQueryLogger replaces GORM's default logger entirely, overriding
// any WithLogLevel setting.
func WithQueryLogger(l gormlogger.Interface) Option {
	return func(s *openSettings) {
		s.queryLogger = l
	}
}

// WithTracing registers per-query span instrumentation on the connection.
// Must be applied at open time so prepared statement caching and the
// tracing callbacks see the same session.
func WithTracing(p *telemetry.DBTracingPlugin) Option {
	return func(s *openSettings) {
		s.tracing = p
	}
}

// Open connects to Postgres and applies pool limits from cfg.
func Open(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	settings := openSettings{logLevel: gormlogger.Silent}
	for _, opt := range opts {
		opt(&settings)
	}

	queryLogger := settings.queryLogger
	if queryLogger == nil {
		queryLogger = gormlogger.Default.LogMode(settings.logLevel)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 queryLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if settings.tracing != nil {
		if err := settings.tracing.RegisterOtelGorm(db); err != nil {
			return nil, fmt.Errorf("register query tracing: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close releases the connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("access connection pool: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks the connection is alive.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("access connection pool: %w", err)
	}
	return sqlDB.Ping()
}

// PoolStats is a point-in-time snapshot of the connection pool, reported
// on the health endpoint.
type PoolStats struct {
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

// PoolStats reports current pool usage.
func (d *Database) PoolStats() (PoolStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return PoolStats{}, fmt.Errorf("access connection pool: %w", err)
	}
	s := sqlDB.Stats()
	return PoolStats{
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}, nil
}

// Transaction runs fn inside a database transaction.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.DB.Transaction(fn)
}
