package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/RoqueChristian/backup-inteligencia/internal/app"
	jobmetrics "github.com/RoqueChristian/backup-inteligencia/internal/jobs"
	"github.com/RoqueChristian/backup-inteligencia/internal/platform/cache"
	"github.com/RoqueChristian/backup-inteligencia/internal/platform/db"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
	"github.com/RoqueChristian/backup-inteligencia/jobs"
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
	logger := app.NewLogger(cfg)

	if cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	svc, err := app.NewReportService(cfg, logger, app.ServiceOptions{Redis: redisClient})
	if err != nil {
		logger.Error("init report service", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskUnifiedExport, Handler: jobs.NewUnifiedExportJob(svc, cfg.ExportDir, logger, metrics).Handle},
		{Type: jobs.TaskCacheWarmup, Handler: jobs.NewCacheWarmupJob(svc, logger, metrics).Handle},
	}

	publish := cfg.PGDSN != ""
	if publish {
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		publisher := report.NewPublisher(pool, logger)
		handlers = append(handlers, jobs.TaskHandler{
			Type:    jobs.TaskPublishUnified,
			Handler: jobs.NewPublishUnifiedJob(svc, publisher, logger, metrics).Handle,
		})
	} else {
		logger.Info("PG_DSN not set, unified snapshots are not published")
	}

	schedule, err := jobs.ReportSchedule(cfg.RefreshCron, publish)
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      schedule,
		Location:  cfg.Location(),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
