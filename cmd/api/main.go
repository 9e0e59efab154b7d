package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/adapter/repo"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/admission"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/cache"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/db"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/dedup"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/http/handlers"
	httpapi "github.com/hasmatt1066/drawnofwar6-sub007/internal/http/httpapi"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/progress"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/queue"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/submit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: database connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if err := db.Migrate(ctx, runner); err != nil {
		logger.Fatal().Err(err).Msg("api: migration failed")
	}

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: redis connection failed")
	}
	defer redisClient.Close()

	jobs := queue.NewPostgres(runner)
	tiered := cache.NewTiered(cache.NewRedisPrimary(redisClient), repo.NewCacheBackup(runner), cfg.CacheTTL, logger)
	defer tiered.Close()

	control := admission.NewControl(jobs, admission.NewRedisCounter(redisClient), cfg.MaxJobsPerUser, cfg.SystemQueueLimit, cfg.WarningThreshold, logger)
	dedupMgr := dedup.NewManager(dedup.NewRedisStore(redisClient), logger)
	bus := progress.NewRedisBus(redisClient, logger)
	submitter := submit.NewSubmitter(jobs, tiered, dedupMgr, control, bus, cfg.MaxRetries, logger)

	app := &handlers.App{
		Submitter:      submitter,
		Queue:          jobs,
		Admission:      control,
		DeadLetters:    repo.NewDeadLetterStore(runner),
		Bus:            bus,
		Validate:       validator.New(),
		Logger:         logger,
		KeepAlive:      cfg.KeepAliveInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
