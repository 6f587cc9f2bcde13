// Package bootstrap wires the process-level dependencies shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fanlive/internal/cache"
	"fanlive/internal/config"
	"fanlive/internal/database"
	"fanlive/internal/middleware"
	"fanlive/internal/settings"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// Attempts bounds the database connect retries. Zero means 5.
	Attempts uint
	// RequireRedis fails startup when Redis cannot be reached.
	RequireRedis bool
}

// InitRuntime connects to the database with backoff, makes sure the admin
// settings row exists and connects Redis. The Redis client is nil when it is
// unreachable and not required.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = 5
	}

	var db *gorm.DB
	err := retry.Do(func() error {
		var err error
		db, err = database.Connect(cfg)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			middleware.Logger.Warn("database not ready, retrying",
				slog.Uint64("attempt", uint64(n+1)), slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	provider := settings.NewProvider(db, settings.Defaults(cfg), cfg.SettingsTTL)
	if err := provider.EnsureRow(ctx); err != nil {
		return nil, nil, err
	}

	cache.InitRedis(cfg.RedisURL)
	rdb := cache.GetClient()
	if rdb == nil && opts.RequireRedis {
		return nil, nil, fmt.Errorf("redis unavailable at %s", cfg.RedisURL)
	}
	return db, rdb, nil
}
