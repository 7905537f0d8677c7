package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obrador-ops/obrador-ops/internal/app"
	"github.com/obrador-ops/obrador-ops/internal/auth"
	"github.com/obrador-ops/obrador-ops/internal/observability"
	"github.com/obrador-ops/obrador-ops/internal/platform/cache"
	"github.com/obrador-ops/obrador-ops/internal/platform/db"
	"github.com/obrador-ops/obrador-ops/internal/production"
	"github.com/obrador-ops/obrador-ops/internal/rbac"
	"github.com/obrador-ops/obrador-ops/internal/shared"
	"github.com/obrador-ops/obrador-ops/internal/stock"
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locks := shared.NewItemLockSet()

	tokens := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokens)
	authHandler := auth.NewHandler(logger, authService)

	rbacService := rbac.NewService(pool)
	rbacMiddleware := rbac.Middleware{Source: rbacService, Logger: logger}

	metrics := observability.NewMetrics()

	availability := stock.NewAvailabilityCache(redisClient, cfg.AvailabilityCacheTTL)
	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, locks, availability)
	ledger := stock.NewLedger(stockRepo)
	stockHandler := stock.NewHandler(logger, stockService, ledger, availability, metrics, rbacMiddleware)

	productionRepo := production.NewRepository(pool)
	resolver := production.NewResolver(productionRepo)
	validator := production.NewValidator(stockRepo)
	productionService := production.NewService(stockRepo, resolver, validator, auditLogger, idempotencyStore, locks, availability)
	productionHandler := production.NewHandler(logger, productionService, metrics, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthHandler:       authHandler,
		StockHandler:      stockHandler,
		ProductionHandler: productionHandler,
		Pool:              pool,
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
