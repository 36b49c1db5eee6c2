package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-credit/meridian-credit/internal/allocation"
	"github.com/meridian-credit/meridian-credit/internal/app"
	"github.com/meridian-credit/meridian-credit/internal/bankfile"
	"github.com/meridian-credit/meridian-credit/internal/causation"
	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/observability"
	"github.com/meridian-credit/meridian-credit/internal/period"
	"github.com/meridian-credit/meridian-credit/internal/platform/cache"
	"github.com/meridian-credit/meridian-credit/internal/platform/db"
	"github.com/meridian-credit/meridian-credit/internal/schedule"
	"github.com/meridian-credit/meridian-credit/internal/shared"
	"github.com/meridian-credit/meridian-credit/internal/statement"
	"github.com/meridian-credit/meridian-credit/internal/writeoff"
	"github.com/meridian-credit/meridian-credit/jobs"
	"github.com/meridian-credit/meridian-credit/report"
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
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	metrics := observability.NewMetrics()

	loanRepo := loan.NewPostgresRepository(pool)

	scheduleService := schedule.NewService(loanRepo, logger)
	scheduleHandler := schedule.NewHandler(logger, scheduleService)

	allocationService := allocation.NewService(allocation.NewPostgresRepository(pool), locker, logger)
	allocationService.WithMetrics(metrics)
	allocationHandler := allocation.NewHandler(logger, allocationService)

	causationService := causation.NewService(causation.NewPostgresRepository(pool), locker, logger, cfg.CausationConcurrency)
	causationService.WithMetrics(metrics)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	causationHandler := causation.NewHandler(logger, causationService, jobClient)

	periodService := period.NewService(period.NewPostgresRepository(pool), locker, logger)
	periodHandler := period.NewHandler(logger, periodService)

	writeoffService := writeoff.NewService(writeoff.NewPostgresRepository(pool), locker, approvalRecorder, logger)
	writeoffHandler := writeoff.NewHandler(logger, writeoffService)

	statementService := statement.NewService(loanRepo)
	statementHandler := statement.NewHandler(logger, statementService)

	bankfileService := bankfile.NewService(bankfile.NewPostgresRepository(pool), allocationService, logger)
	bankfileHandler := bankfile.NewHandler(logger, bankfileService)

	var reportHandler *report.Handler
	if cfg.GotenbergURL != "" {
		reportHandler = report.NewHandler(report.NewClient(cfg.GotenbergURL), statementService, logger)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ScheduleHandler:   scheduleHandler,
		AllocationHandler: allocationHandler,
		CausationHandler:  causationHandler,
		PeriodHandler:     periodHandler,
		WriteOffHandler:   writeoffHandler,
		StatementHandler:  statementHandler,
		BankFileHandler:   bankfileHandler,
		ReportHandler:     reportHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
