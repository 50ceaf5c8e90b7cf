// Package app wires configuration into the verification engine for the
// api and jobs binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"rental-marketplace/internal/config"
	"rental-marketplace/internal/database"
	"rental-marketplace/internal/logger"
	"rental-marketplace/internal/notify"
	"rental-marketplace/internal/scheduler"
	"rental-marketplace/internal/search"
	"rental-marketplace/internal/verification"
)

// App holds the engine components built from one Config
type App struct {
	Config     *config.Config
	DB         *database.GormDB
	Redis      *redis.Client
	Search     *search.TrustClient
	Dispatcher *notify.Dispatcher
	Processor  *verification.Processor
	Scheduler  *verification.Scheduler
	Sweeper    *verification.Sweeper
	Jobs       *scheduler.Scheduler
}

// New opens the database, migrates it and builds the engine.
// Search and Redis are optional; their absence is logged.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg.Database, cfg.Logging.LogSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	a := &App{
		Config:     cfg,
		DB:         db,
		Dispatcher: notify.NewDispatcher(cfg.Notifications),
	}

	var indexer verification.Indexer
	if host := cfg.Search.Meilisearch.Host; host != "" {
		a.Search = search.NewTrustClient(host, cfg.Search.Meilisearch.APIKey, cfg.Search.Meilisearch.Index)
		if err := a.Search.InitIndex(); err != nil {
			logger.Log.WithError(err).Warn("Search: failed to initialize trust index")
		}
		indexer = a.Search
	} else {
		logger.Log.Info("Search: Meilisearch host not configured, trust index disabled")
	}

	var locker scheduler.Locker
	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.Redis.Ping(pingCtx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = scheduler.NewRedisLocker(a.Redis)
	} else {
		logger.Log.Info("Scheduler: Redis not configured, using in-process job locks")
		locker = scheduler.NewLocalLocker()
	}

	gdb := db.DB()
	policy := verification.PolicyFromConfig(cfg.Verification)
	opts := []verification.Option{
		verification.WithNotifier(a.Dispatcher),
		verification.WithRewards(verification.NewTokenLedger(gdb)),
	}
	// a nil *TrustClient must not end up inside the interface
	if indexer != nil {
		opts = append(opts, verification.WithIndexer(indexer))
	}

	a.Processor = verification.NewProcessor(gdb, policy, opts...)
	a.Scheduler = verification.NewScheduler(gdb, policy, opts...)
	a.Sweeper = verification.NewSweeper(gdb, policy, opts...)
	a.Jobs = scheduler.NewScheduler(cfg.Jobs, a.Scheduler, a.Sweeper, locker)

	return a, nil
}

// Close stops the jobs and releases connections
func (a *App) Close() {
	if a.Jobs != nil {
		a.Jobs.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close redis client")
		}
	}
	if err := a.DB.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close database")
	}
}
