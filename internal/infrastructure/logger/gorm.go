package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger adapts zap to GORM's logger interface. Query logs carry the
// request id when the calling context has one, so a slow mirror upsert can
// be tied back to the HTTP request or worker cycle that issued it.
type GormLogger struct {
	zl    *zap.Logger
	level gormlogger.LogLevel

	// SlowThreshold promotes queries above this duration to warn level.
	// Zero disables slow query logging.
	SlowThreshold time.Duration
	// SkipRecordNotFound drops gorm.ErrRecordNotFound from error logs.
	SkipRecordNotFound bool
}

// NewGormLogger wraps zapLogger for use as a GORM query logger.
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{
		zl:                 zapLogger.Named("gorm"),
		level:              level,
		SlowThreshold:      200 * time.Millisecond,
		SkipRecordNotFound: true,
	}
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.zl.Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.zl.Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.zl.Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface. Errors log at error level, slow
// queries at warn, everything else at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	switch {
	case err != nil && l.level >= gormlogger.Error:
		if l.SkipRecordNotFound && errors.Is(err, gormlogger.ErrRecordNotFound) {
			return
		}
		l.zl.Error("Query failed", append(l.queryFields(ctx, begin, fc), zap.Error(err))...)

	case l.SlowThreshold > 0 && time.Since(begin) > l.SlowThreshold && l.level >= gormlogger.Warn:
		l.zl.Warn("Slow query", append(l.queryFields(ctx, begin, fc), zap.Duration("threshold", l.SlowThreshold))...)

	case l.level >= gormlogger.Info:
		l.zl.Debug("Query", l.queryFields(ctx, begin, fc)...)
	}
}

func (l *GormLogger) queryFields(ctx context.Context, begin time.Time, fc func() (string, int64)) []zap.Field {
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", time.Since(begin)),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return fields
}

// MapGormLogLevel maps the application log level to a GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
