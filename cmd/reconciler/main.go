// The reconciler runs the background half of the settlement subsystem: the
// outbox dispatcher, the reconciliation poller and the idempotency sweeper.
// It shares the database with the api process but never serves user traffic.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Savage57/prime-ledger/internal/billpay"
	"github.com/Savage57/prime-ledger/internal/config"
	"github.com/Savage57/prime-ledger/internal/idempotency"
	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/loan"
	"github.com/Savage57/prime-ledger/internal/metrics"
	"github.com/Savage57/prime-ledger/internal/outbox"
	"github.com/Savage57/prime-ledger/internal/provider"
	"github.com/Savage57/prime-ledger/internal/reconcile"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	gateway := provider.NewClient(provider.ClientConfig{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderTimeout,
	}, logger, m)

	dispatchHandler := reconcile.NewDispatchHandler(records, gateway, logger)
	dispatcher := outbox.NewDispatcher(outboxStore, cfg.DispatchInterval, cfg.DispatchBatchSize, logger, m)
	dispatcher.Handle(transfer.Topic, dispatchHandler)
	dispatcher.Handle(billpay.Topic, dispatchHandler)
	dispatcher.Handle(loan.Topic, dispatchHandler)

	poller := reconcile.NewPoller(db.Pool, records, ledgerStore, gateway, reconcile.PollerConfig{
		Interval:      cfg.PollInterval,
		BatchSize:     cfg.PollBatchSize,
		RefundTimeout: cfg.RefundTimeout,
	}, logger, m)

	sweeper := reconcile.NewSweeper(guard, cfg.SweepInterval, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); dispatcher.Run(ctx) }()
	go func() { defer wg.Done(); poller.Run(ctx) }()
	go func() { defer wg.Done(); sweeper.Run(ctx) }()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("reconciler started", "addr", cfg.ListenAddr, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", "error", err)
	}

	wg.Wait()
	logger.Info("reconciler stopped")
}
