package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultAttempts = 10
	retryDelay      = 2 * time.Second
)

// Config captures the settings for opening the relational row store.
type Config struct {
	DSN         string
	MaxAttempts int
}

// Connect opens the database, retrying while it comes up, and migrates the
// users table.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*gorm.DB, error) {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	err := retry(ctx, attempts, retryDelay, func() error {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
		return err
	}, func(attempt int, err error) {
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Msg("postgres connect failed")
	})
	if err != nil {
		return nil, fmt.Errorf("postgres connect after %d attempts: %w", attempts, err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&userRow{}); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return db, nil
}

// retry calls fn up to attempts times, waiting delay between failures but not
// after the last one.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error, onFail func(attempt int, err error)) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		onFail(i, err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// Pinger adapts a gorm handle to the readiness check.
type Pinger struct {
	DB *gorm.DB
}

func (p Pinger) Ping(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
