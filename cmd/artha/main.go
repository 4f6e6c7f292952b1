package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/artha-pos/artha-pos/internal/app"
	"github.com/artha-pos/artha-pos/internal/catalog"
	"github.com/artha-pos/artha-pos/internal/ledger"
	"github.com/artha-pos/artha-pos/internal/observability"
	"github.com/artha-pos/artha-pos/internal/platform/cache"
	"github.com/artha-pos/artha-pos/internal/platform/db"
	"github.com/artha-pos/artha-pos/internal/purchasing"
	"github.com/artha-pos/artha-pos/internal/sales"
	"github.com/artha-pos/artha-pos/internal/shared"
	"github.com/artha-pos/artha-pos/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// A missing Redis only disables the summary cache, so keep going.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()
	ledgerCache := ledger.NewCache(redisClient, cfg.SummaryCacheTTL)
	defer func() {
		if err := ledgerCache.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, metrics, ledgerCache, ledger.ServiceConfig{
		StrictStock: cfg.StrictStock,
	})
	ledgerReports := ledger.NewReports(ledgerRepo, ledgerCache)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, ledgerReports)

	catalogRepo := catalog.NewRepository(pool)
	catalogHandler := catalog.NewHandler(logger, catalogRepo)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(logger, purchasingRepo, ledgerService, idempotencyStore)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(logger, salesRepo, ledgerService, idempotencyStore)
	salesHandler := sales.NewHandler(logger, salesService)

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
		CatalogHandler:    catalogHandler,
		LedgerHandler:     ledgerHandler,
		PurchasingHandler: purchasingHandler,
		SalesHandler:      salesHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
