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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Savage57/prime-ledger/internal/api"
	"github.com/Savage57/prime-ledger/internal/billpay"
	"github.com/Savage57/prime-ledger/internal/config"
	"github.com/Savage57/prime-ledger/internal/idempotency"
	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/loan"
	"github.com/Savage57/prime-ledger/internal/metrics"
	"github.com/Savage57/prime-ledger/internal/outbox"
	"github.com/Savage57/prime-ledger/internal/provider"
	"github.com/Savage57/prime-ledger/internal/savings"
	"github.com/Savage57/prime-ledger/internal/settlement"
	"github.com/Savage57/prime-ledger/internal/store"
	"github.com/Savage57/prime-ledger/internal/transfer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(ctx, db.Pool); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	ledgerStore := ledger.NewStore(m)
	guard := idempotency.NewGuard(db.Pool, m)
	outboxStore := outbox.NewStore(db.Pool)
	records := settlement.NewStore(db.Pool)

	engine := settlement.NewEngine(db.Pool, guard, ledgerStore, outboxStore, records, cfg.IdempotencyTTL, logger)

	gateway := provider.NewClient(provider.ClientConfig{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderTimeout,
	}, logger, m)

	router := api.NewRouter(api.Dependencies{
		Logger:            logger,
		DB:                db.Pool,
		Transfers:         transfer.NewService(engine),
		BillPayments:      billpay.NewService(engine),
		Savings:           savings.NewService(engine),
		Loans:             loan.NewService(engine),
		Ledger:            ledgerStore,
		Provider:          gateway,
		StalePendingAfter: cfg.StalePendingAfter,
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("settlement api listening", "addr", cfg.ListenAddr, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
