package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gestionrh/gestionrh-console/internal/app"
	"github.com/gestionrh/gestionrh-console/internal/auth"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	jobmetrics "github.com/gestionrh/gestionrh-console/internal/jobs"
	"github.com/gestionrh/gestionrh-console/internal/platform/cache"
	"github.com/gestionrh/gestionrh-console/internal/platform/db"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "gestionrh-worker")

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisLocation := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisLocation)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	queryCache := querycache.New(redisClient, querycache.Options{TTL: cfg.QueryCacheTTL, Logger: logger})

	var serviceAPI *hrapi.Caller
	if cfg.HRAPIServiceToken != "" {
		api := hrapi.NewClient(hrapi.Config{BaseURL: cfg.HRAPIURL, Timeout: cfg.HRAPITimeout}, logger)
		serviceAPI = api.For(hrapi.ServiceToken(cfg.HRAPIServiceToken))
	} else {
		logger.Warn("HR_API_SERVICE_TOKEN not set, reference data warmup disabled")
	}

	warmupJob := jobs.NewRefdataWarmupJob(serviceAPI, queryCache, logger, metrics)
	pruneJob := jobs.NewSessionsPruneJob(auth.NewRepository(pool), shared.NewIdempotencyStore(pool), logger, metrics)

	warmupTask, err := jobs.NewRefdataWarmupTask("schedule")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisLocation.Asynq(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRefdataWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskSessionsPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: jobs.NewSessionsPruneTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
