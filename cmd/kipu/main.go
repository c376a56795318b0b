package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/kipuventas/kipu/internal/addresses"
	"github.com/kipuventas/kipu/internal/alerts"
	"github.com/kipuventas/kipu/internal/app"
	"github.com/kipuventas/kipu/internal/catalog"
	"github.com/kipuventas/kipu/internal/observability"
	"github.com/kipuventas/kipu/internal/platform/cache"
	"github.com/kipuventas/kipu/internal/platform/db"
	"github.com/kipuventas/kipu/internal/sales"
	"github.com/kipuventas/kipu/internal/shared"
	"github.com/kipuventas/kipu/internal/stock"
	"github.com/kipuventas/kipu/internal/users"
	"github.com/kipuventas/kipu/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.StmtTimeout)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Warn("redis unavailable, storefront cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	validate := validator.New()

	auditLogger := shared.NewAuditLogger(dbpool)

	alertsRepo := alerts.NewRepository(dbpool)
	alertsService := alerts.NewService(alertsRepo, logger)
	alertsHandler := alerts.NewHandler(logger, alertsService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(stockRepo, auditLogger, alertsService, stock.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
	})
	stockHandler := stock.NewHandler(logger, stockService, validate)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, auditLogger, alertsService, jobClient, logger, sales.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
	})
	salesHandler := sales.NewHandler(logger, salesService, validate)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, auditLogger, redisClient, logger, catalog.ServiceConfig{StorefrontTTL: cfg.StorefrontTTL})
	catalogHandler := catalog.NewHandler(logger, catalogService, validate)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger)
	usersHandler := users.NewHandler(logger, usersService, validate)

	addressesRepo := addresses.NewRepository(dbpool)
	addressesHandler := addresses.NewHandler(logger, addressesRepo, validate)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SalesHandler:     salesHandler,
		CatalogHandler:   catalogHandler,
		StockHandler:     stockHandler,
		UsersHandler:     usersHandler,
		AddressesHandler: addressesHandler,
		AlertsHandler:    alertsHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
