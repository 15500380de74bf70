package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options tunes how Open connects.
type Options struct {
	// AppEnv selects the query log level: development and test log warnings.
	AppEnv     string
	MaxRetries int
}

// Open opens a Gorm connection with retry and sane pooling defaults.
// A url beginning with "sqlite:" or "file:" opens sqlite, anything else
// is handed to the postgres driver.
func Open(ctx context.Context, url string, opts Options) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if opts.AppEnv == "development" || opts.AppEnv == "test" {
		logLevel = gormlogger.Warn
	}

	dialector, isSQLite, err := dialectorFor(url)
	if err != nil {
		return nil, err
	}

	b := backoff{
		maxRetries: opts.MaxRetries,
		delay:      500 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
	if b.maxRetries == 0 {
		b.maxRetries = 5
	}

	var db *gorm.DB
	for attempt := 0; ; attempt++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger:         zapLogger{level: logLevel},
			TranslateError: true,
		})
		if err == nil {
			break
		}
		if attempt >= b.maxRetries {
			return nil, fmt.Errorf("open database failed after retries: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("open database canceled: %w", ctx.Err())
		case <-time.After(b.nextDelay(attempt)):
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db db() error: %w", err)
	}

	if isSQLite {
		// sqlite serializes writers; a single connection also keeps
		// in-memory databases alive across calls.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctxPing); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

// Ping checks connectivity for readiness probes.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(url string) (gorm.Dialector, bool, error) {
	var path string
	switch {
	case strings.HasPrefix(url, "sqlite:"):
		path = strings.TrimPrefix(strings.TrimPrefix(url, "sqlite:"), "//")
	case strings.HasPrefix(url, "file:"):
		path = url
	default:
		return postgres.Open(url), false, nil
	}
	if path == "" {
		return nil, false, fmt.Errorf("empty sqlite path in %q", url)
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, false, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return sqlite.Open(path), true, nil
}

type backoff struct {
	maxRetries int
	delay      time.Duration
	maxDelay   time.Duration
}

func (b backoff) nextDelay(attempt int) time.Duration {
	d := b.delay << attempt
	if d > b.maxDelay || d <= 0 {
		return b.maxDelay
	}
	return d
}
