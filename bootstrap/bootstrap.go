// Package bootstrap wires configuration, storage and services. The HTTP
// server, the serverless handler and the admin CLI all start here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boneboard-backend/internal/application/cascade"
	"boneboard-backend/internal/application/ledger"
	"boneboard-backend/internal/application/lifecycle"
	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/config"
	"boneboard-backend/internal/infrastructure/database"
	"boneboard-backend/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Runtime holds the opened connections and the services built on them.
type Runtime struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Pricing   *pricing.Engine
	Lifecycle *lifecycle.Service
	Ledger    *ledger.Service
	Cascade   *cascade.Service
	Scheduler *lifecycle.Scheduler
}

// Open connects to the database and, when configured, Redis. The scheduler is
// built but not started.
func Open(cfg *config.Config) (*Runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	rates, err := pricing.FromConfig(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("pricing config: %w", err)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("bootstrap: schema migrated")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
	} else {
		log.Warn().Msg("bootstrap: REDIS_URL not set, sweep lock and request stats disabled")
	}

	return NewRuntime(cfg, db, rdb, rates), nil
}

// NewRuntime builds the services over already opened connections.
func NewRuntime(cfg *config.Config, db *gorm.DB, rdb *redis.Client, rates *pricing.RateTable) *Runtime {
	engine := pricing.NewEngine(rates)
	lc := &lifecycle.Service{DB: db, Pricing: engine}
	return &Runtime{
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Pricing:   engine,
		Lifecycle: lc,
		Ledger:    &ledger.Service{DB: db},
		Cascade:   &cascade.Service{DB: db},
		Scheduler: lifecycle.NewScheduler(lc, rdb, cfg.SweepSchedule, cfg.SweepLockTTL),
	}
}

// App builds the Fiber app over the runtime's services.
func (r *Runtime) App() *fiber.App {
	return router.CreateApp(r.Config, router.Deps{
		DB:        r.DB,
		Redis:     r.Redis,
		Pricing:   r.Pricing,
		Lifecycle: r.Lifecycle,
		Ledger:    r.Ledger,
		Cascade:   r.Cascade,
		Sweeper:   r.Scheduler,
	})
}

// Ping verifies both connections.
func (r *Runtime) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if r.Redis != nil {
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the connections.
func (r *Runtime) Close() {
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("bootstrap: redis close")
		}
	}
	if sqlDB, err := r.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("bootstrap: database close")
		}
	}
}

// New creates the Fiber app for serverless deployments, where no scheduler
// runs; sweeps are triggered through POST /api/v1/admin/sweep instead.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	rt, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return rt.App(), nil
}

// pingTimeout bounds startup connectivity checks.
const pingTimeout = 5 * time.Second

// PingWithTimeout is Ping bounded by pingTimeout.
func (r *Runtime) PingWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return r.Ping(ctx)
}
