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
	"github.com/redis/go-redis/v9"

	"github.com/stocknest/stocknest/internal/adjustments"
	"github.com/stocknest/stocknest/internal/app"
	"github.com/stocknest/stocknest/internal/counts"
	"github.com/stocknest/stocknest/internal/ledger"
	"github.com/stocknest/stocknest/internal/platform/db"
	"github.com/stocknest/stocknest/internal/purchasing"
	"github.com/stocknest/stocknest/internal/receiving"
	"github.com/stocknest/stocknest/internal/shared"
	"github.com/stocknest/stocknest/internal/transfers"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, redisClient, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, validate)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, auditLogger)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService, validate)

	receivingRepo := receiving.NewRepository(pool)
	receivingService := receiving.NewService(receivingRepo, auditLogger)
	receivingHandler := receiving.NewHandler(logger, receivingService, validate)

	transfersRepo := transfers.NewRepository(pool)
	transfersService := transfers.NewService(transfersRepo, auditLogger)
	transfersHandler := transfers.NewHandler(logger, transfersService, validate)

	adjustmentsRepo := adjustments.NewRepository(pool)
	adjustmentsService := adjustments.NewService(adjustmentsRepo, auditLogger)
	adjustmentsHandler := adjustments.NewHandler(logger, adjustmentsService, validate)

	countsRepo := counts.NewRepository(pool)
	countsService := counts.NewService(countsRepo, auditLogger)
	countsHandler := counts.NewHandler(logger, countsService, validate)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		PurchasingHandler:  purchasingHandler,
		ReceivingHandler:   receivingHandler,
		TransfersHandler:   transfersHandler,
		AdjustmentsHandler: adjustmentsHandler,
		CountsHandler:      countsHandler,
		LedgerHandler:      ledgerHandler,
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
