package bootstrap

import (
	"fmt"
	"strings"

	"helpboard/internal/cache"
	"helpboard/internal/config"
	"helpboard/internal/database"
	"helpboard/internal/middleware"
	"helpboard/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedDemoData bool
}

// InitRuntime connects to DB and Redis and optionally seeds demo data.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.SeedDemoData {
		if err := SeedDemo(cfg, db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, r, nil
}

// SeedDemo loads demo neighbours in development. Other environments are a no-op.
func SeedDemo(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") {
		middleware.Logger.Warn("Demo seed skipped outside development", "env", cfg.Env)
		return nil
	}
	res, err := seed.Run(db, seed.DefaultOptions())
	if err != nil {
		return err
	}
	middleware.Logger.Info("Demo data seeded", "created", res.Neighbours, "existing", res.Skipped)
	return nil
}
