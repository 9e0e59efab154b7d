package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/adapter/repo"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/admission"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/cache"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/db"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/dedup"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra/credentials"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/progress"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/providers/sprite"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/queue"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/retry"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if err := db.Migrate(ctx, runner); err != nil {
		logger.Fatal().Err(err).Msg("worker: migration failed")
	}

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer redisClient.Close()

	jobs := queue.NewPostgres(runner)
	backup := repo.NewCacheBackup(runner)
	tiered := cache.NewTiered(cache.NewRedisPrimary(redisClient), backup, cfg.CacheTTL, logger)
	defer tiered.Close()
	go cacheJanitor(ctx, backup, logger)

	control := admission.NewControl(jobs, admission.NewRedisCounter(redisClient), cfg.MaxJobsPerUser, cfg.SystemQueueLimit, cfg.WarningThreshold, logger)
	dedupMgr := dedup.NewManager(dedup.NewRedisStore(redisClient), logger)
	bus := progress.NewRedisBus(redisClient, logger)
	retryMgr := retry.NewManager(jobs, repo.NewDeadLetterStore(runner), cfg.BackoffDelay, cfg.BackoffMultiplier, logger)

	apiKey := strings.TrimSpace(cfg.PixelLabAPIKey)
	if apiKey == "" {
		keyFromStore, err := credentials.NewStore(runner).PixelLabAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load pixellab api key from store")
		} else {
			apiKey = keyFromStore
		}
	}
	generator := newGenerator(cfg, apiKey, logger)

	workerPool := worker.NewPool(worker.Options{
		Queue:            jobs,
		Cache:            tiered,
		Generator:        generator,
		Retry:            retryMgr,
		Dedup:            dedupMgr,
		Admission:        control,
		Bus:              bus,
		Concurrency:      cfg.WorkerConcurrency,
		Lease:            cfg.LeaseDuration,
		GenerateTimeout:  cfg.GenerationTimeout,
		ProgressInterval: cfg.ProgressUpdateInterval,
		Logger:           logger,
	})

	if err := workerPool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// cacheJanitor trims expired rows from the durable cache tier once an
// hour. Reads already treat expired rows as misses, so this only keeps
// the table from growing without bound.
func cacheJanitor(ctx context.Context, backup *repo.CacheBackupPG, logger infra.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := backup.DeleteExpired(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("worker: cache cleanup failed")
				continue
			}
			if reclaimed > 0 {
				logger.Info().Int64("rows", reclaimed).Msg("worker: expired cache entries removed")
			}
		}
	}
}

func newGenerator(cfg *infra.Config, apiKey string, logger infra.Logger) sprite.Generator {
	if apiKey == "" {
		logger.Warn().Msg("worker: pixellab api key missing, using synthetic sprite generation")
		return sprite.NewSynthetic(logger)
	}
	return sprite.NewPixelLab(sprite.Options{
		APIKey:       apiKey,
		BaseURL:      cfg.PixelLabBaseURL,
		PollInterval: cfg.ProgressUpdateInterval,
		Logger:       logger,
	})
}
