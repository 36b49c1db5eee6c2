package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-credit/meridian-credit/internal/app"
	"github.com/meridian-credit/meridian-credit/internal/causation"
	jobmetrics "github.com/meridian-credit/meridian-credit/internal/jobs"
	"github.com/meridian-credit/meridian-credit/internal/period"
	"github.com/meridian-credit/meridian-credit/internal/platform/cache"
	"github.com/meridian-credit/meridian-credit/internal/platform/db"
	"github.com/meridian-credit/meridian-credit/internal/shared"
	"github.com/meridian-credit/meridian-credit/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	locker := shared.NewLocker(redisClient, cfg.LockTTL)

	causationService := causation.NewService(causation.NewPostgresRepository(pool), locker, logger, cfg.CausationConcurrency)
	periodService := period.NewService(period.NewPostgresRepository(pool), locker, logger)

	runJob := causation.NewRunJob(causationService, logger)
	sweepJob := causation.NewSweepJob(causationService, periodService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Metrics:     jobmetrics.NewMetrics(nil),
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCausationRun, Handler: runJob.Handle},
			{Type: jobs.TaskCausationSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CausationCronSpec, Task: jobs.NewCausationSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
