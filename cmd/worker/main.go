package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/wisdomcg/wisdom-forecast/internal/app"
	"github.com/wisdomcg/wisdom-forecast/internal/forecast"
	jobmetrics "github.com/wisdomcg/wisdom-forecast/internal/jobs"
	"github.com/wisdomcg/wisdom-forecast/internal/platform/cache"
	"github.com/wisdomcg/wisdom-forecast/internal/platform/db"
	"github.com/wisdomcg/wisdom-forecast/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	repo := forecast.NewRepository(pool)
	viewCache := forecast.NewCache(redisClient, cfg.CacheTTL)
	service := forecast.NewService(repo, viewCache, nil, logger)
	rebuildJob := forecast.NewRebuildJob(service, logger, jobmetrics.NewMetrics(nil))

	sweepTask := jobs.NewForecastSweepTask()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeForecastRebuild, Handler: rebuildJob.Handle},
			{Type: jobs.TaskTypeForecastSweep, Handler: rebuildJob.HandleSweep},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepCronSpec, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
