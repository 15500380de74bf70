package database

import (
	"context"
	"errors"
	"time"

	"github.com/workflow-builder/engine/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// zapLogger routes gorm's logging through the request-scoped zap logger.
type zapLogger struct {
	level gormlogger.LogLevel
}

func (l zapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface { l.level = level; return l }

func (l zapLogger) Info(ctx context.Context, s string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.Ctx(ctx).Sugar().Infof(s, args...)
	}
}

func (l zapLogger) Warn(ctx context.Context, s string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.Ctx(ctx).Sugar().Warnf(s, args...)
	}
}

func (l zapLogger) Error(ctx context.Context, s string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.Ctx(ctx).Sugar().Errorf(s, args...)
	}
}

func (l zapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level == gormlogger.Silent {
		return
	}
	sql, rows := fc()
	dur := time.Since(begin)
	log := logger.Ctx(ctx)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		log.Error("gorm query error", zap.Duration("duration", dur), zap.Int64("rows", rows), zap.String("sql", sql), zap.Error(err))
	case dur > slowQueryThreshold && l.level >= gormlogger.Warn:
		log.Warn("gorm slow query", zap.Duration("duration", dur), zap.Int64("rows", rows), zap.String("sql", sql))
	default:
		log.Debug("gorm query", zap.Duration("duration", dur), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}
