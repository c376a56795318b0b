package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/kipuventas/kipu/internal/alerts"
	"github.com/kipuventas/kipu/internal/app"
	"github.com/kipuventas/kipu/internal/catalog"
	"github.com/kipuventas/kipu/internal/invoicing"
	jobmetrics "github.com/kipuventas/kipu/internal/jobs"
	"github.com/kipuventas/kipu/internal/platform/db"
	"github.com/kipuventas/kipu/internal/sales"
	"github.com/kipuventas/kipu/internal/shared"
	"github.com/kipuventas/kipu/internal/stock"
	"github.com/kipuventas/kipu/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.StmtTimeout)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	auditLogger := shared.NewAuditLogger(pool)

	alertsRepo := alerts.NewRepository(pool)
	alertsService := alerts.NewService(alertsRepo, logger)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, auditLogger, alertsService, nil, logger, sales.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
	})

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger, nil, logger, catalog.ServiceConfig{})

	provider := invoicing.NewClient(cfg.NubeFactURL, cfg.NubeFactToken)

	invoiceJob := &jobs.InvoiceIssueJob{
		Sales:    salesService,
		Provider: provider,
		Products: catalogService,
		Series:   cfg.ReceiptSeries,
		IGVRate:  cfg.IGVRate,
		Logger:   logger,
		Metrics:  metrics,
	}

	scanJob := &jobs.LowStockScanJob{
		Pool:      pool,
		Alerts:    alertsService,
		Threshold: cfg.LowStockThreshold,
		Logger:    logger,
		Metrics:   metrics,
	}

	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = stock.DefaultLowStockThreshold
	}
	scanTask, err := jobs.NewLowStockScanTask(jobs.LowStockScanPayload{Threshold: threshold})
	if err != nil {
		logger.Error("build low-stock scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoiceIssue, Handler: invoiceJob.Handle},
			{Type: jobs.TaskLowStockScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
