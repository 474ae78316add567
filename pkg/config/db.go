package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	applog "ad-assistant/backend/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	connectAttempts = 5
	connectDelay    = 5 * time.Second
)

// DSN returns the postgres connection string for the configured database
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
		int(c.Database.Timeout.Seconds()),
	)
}

// gormWriter routes gorm's own log lines through the application logger
type gormWriter struct {
	log   *applog.Logger
	level slog.Level
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Log(context.Background(), w.level, fmt.Sprintf(format, args...), "component", "gorm")
}

// NewDB connects to postgres, retrying while the database comes up. It gives
// up early when ctx is done.
func NewDB(ctx context.Context, cfg *Config, log *applog.Logger) (*gorm.DB, error) {
	level, slogLevel := logger.Warn, slog.LevelWarn
	if cfg.Server.Env == "development" {
		level, slogLevel = logger.Info, slog.LevelDebug
	}
	gormConfig := &gorm.Config{
		Logger: logger.New(gormWriter{log: log, level: slogLevel}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var (
		db  *gorm.DB
		err error
	)
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			break
		}

		log.Warn("Failed to connect to database, retrying",
			"attempt", attempt,
			"delay", connectDelay.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to database: %w", ctx.Err())
		case <-time.After(connectDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", connectAttempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(min(10, cfg.Database.MaxConns))
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	return db, nil
}

// Ping checks that the database connection is alive
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
