// Package reconcile resolves pending settlements. A poller claims each
// pending record, asks the provider for its fate, and either completes the
// ledger trace, refunds it, or releases the claim for the next cycle. The
// companion dispatch handler performs the initial provider call from outbox
// events.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/metrics"
	"github.com/Savage57/prime-ledger/internal/provider"
	"github.com/Savage57/prime-ledger/internal/settlement"
	"github.com/Savage57/prime-ledger/internal/store"
)

// Records is the settlement-record surface the poller needs.
type Records interface {
	FetchPending(ctx context.Context, limit int) ([]settlement.Record, error)
	CountPending(ctx context.Context) (int64, error)
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
	Finish(ctx context.Context, q store.Querier, id string, status settlement.Status) error
}

// Ledger is the posting surface the poller needs.
type Ledger interface {
	CreateEntry(ctx context.Context, q store.Querier, e *ledger.Entry) (*ledger.Entry, error)
	UpdateStatusByTrace(ctx context.Context, q store.Querier, traceID string, status ledger.Status) error
}

// Gateway is the provider surface the poller needs.
type Gateway interface {
	QueryTransfer(ctx context.Context, reference string) (*provider.TransferResult, error)
}

// PollerConfig tunes one reconciliation poller.
type PollerConfig struct {
	Interval      time.Duration
	BatchSize     int
	RefundTimeout time.Duration
}

// Poller drives pending settlements to a terminal state.
type Poller struct {
	db      store.DB
	records Records
	ledger  Ledger
	gateway Gateway
	cfg     PollerConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

// NewPoller creates a poller. log and m may be nil.
func NewPoller(db store.DB, records Records, lg Ledger, gw Gateway, cfg PollerConfig, log *slog.Logger, m *metrics.Metrics) *Poller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RefundTimeout <= 0 {
		cfg.RefundTimeout = 30 * time.Minute
	}
	return &Poller{
		db:      db,
		records: records,
		ledger:  lg,
		gateway: gw,
		cfg:     cfg,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.log.Info("reconciliation poller started",
		"interval", p.cfg.Interval, "batch_size", p.cfg.BatchSize, "refund_timeout", p.cfg.RefundTimeout)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("reconciliation poller stopped")
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.log.Error("reconciliation cycle failed", "error", err)
				p.cycle("error")
			} else {
				p.cycle("ok")
			}
		}
	}
}

// RunOnce processes one batch. A failure on one record never aborts the rest
// of the batch.
func (p *Poller) RunOnce(ctx context.Context) error {
	if p.metrics != nil {
		if n, err := p.records.CountPending(ctx); err == nil {
			p.metrics.PendingSettlements.Set(float64(n))
		}
	}

	records, err := p.records.FetchPending(ctx, p.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending settlements: %w", err)
	}

	for _, rec := range records {
		result, err := p.process(ctx, rec)
		if err != nil {
			p.log.Error("failed to reconcile settlement",
				"settlement_id", rec.ID, "reference", rec.Reference, "error", err)
			result = "error"
		}
		p.record(result)
	}
	return nil
}

func (p *Poller) process(ctx context.Context, rec settlement.Record) (string, error) {
	claimed, err := p.records.Claim(ctx, rec.ID)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "skipped", nil
	}

	if p.now().Sub(rec.CreatedAt) > p.cfg.RefundTimeout {
		if err := p.refund(ctx, rec, "refund timeout exceeded"); err != nil {
			return "", p.releaseAfter(ctx, rec.ID, err)
		}
		return "refunded", nil
	}

	// Not yet dispatched to the provider; there is nothing to query. The
	// refund timeout still covers a dispatch that never happens.
	if rec.ProviderRef == "" {
		if err := p.records.Release(ctx, rec.ID); err != nil {
			return "", err
		}
		return "awaiting_dispatch", nil
	}

	res, err := p.gateway.QueryTransfer(ctx, rec.Reference)
	if err != nil {
		// Provider unreachable: release the claim and let the next cycle
		// retry inside the refund window.
		if relErr := p.records.Release(ctx, rec.ID); relErr != nil {
			return "", relErr
		}
		return "", err
	}

	switch res.Status {
	case provider.StatusSuccess:
		if err := p.complete(ctx, rec); err != nil {
			return "", p.releaseAfter(ctx, rec.ID, err)
		}
		return "completed", nil
	case provider.StatusFailed:
		if err := p.refund(ctx, rec, "provider reported failure"); err != nil {
			return "", p.releaseAfter(ctx, rec.ID, err)
		}
		return "refunded", nil
	default:
		if err := p.records.Release(ctx, rec.ID); err != nil {
			return "", err
		}
		return "still_pending", nil
	}
}

// releaseAfter returns a claim whose terminal write failed so the next cycle
// retries the record. The cause is what the caller reports; a failed release
// is only logged, stale-claim reclamation in FetchPending covers it.
func (p *Poller) releaseAfter(ctx context.Context, id string, cause error) error {
	if err := p.records.Release(ctx, id); err != nil {
		p.log.Error("failed to release claimed settlement", "settlement_id", id, "error", err)
	}
	return cause
}

// complete posts the credit side of the settlement and closes the trace. The
// counterpart credit, the fee credit and both status flips land in one
// transaction.
func (p *Poller) complete(ctx context.Context, rec settlement.Record) error {
	err := store.WithTx(ctx, p.db, func(q store.Querier) error {
		credit := &ledger.Entry{
			TraceID:  rec.TraceID,
			UserID:   rec.UserID,
			Account:  rec.Counterpart,
			Type:     ledger.Credit,
			Category: categoryFor(rec.Kind),
			Amount:   rec.Amount,
			Currency: rec.Currency,
			Status:   ledger.StatusCompleted,
		}
		if _, err := p.ledger.CreateEntry(ctx, q, credit); err != nil {
			return err
		}

		if rec.Fee > 0 {
			fee := &ledger.Entry{
				TraceID:  rec.TraceID,
				UserID:   rec.UserID,
				Account:  ledger.AccountPlatformRevenue,
				Type:     ledger.Credit,
				Category: ledger.CategoryFee,
				Amount:   rec.Fee,
				Currency: rec.Currency,
				Status:   ledger.StatusCompleted,
			}
			if _, err := p.ledger.CreateEntry(ctx, q, fee); err != nil {
				return err
			}
		}

		if err := p.ledger.UpdateStatusByTrace(ctx, q, rec.TraceID, ledger.StatusCompleted); err != nil {
			return err
		}
		return p.records.Finish(ctx, q, rec.ID, settlement.StatusCompleted)
	})
	if err != nil {
		return fmt.Errorf("failed to complete settlement %s: %w", rec.ID, err)
	}

	p.log.Info("settlement completed",
		"settlement_id", rec.ID, "reference", rec.Reference, "kind", rec.Kind, "amount", rec.Amount)
	return nil
}

// refund compensates the debited account with amount plus fee and closes the
// trace as failed.
func (p *Poller) refund(ctx context.Context, rec settlement.Record, reason string) error {
	err := store.WithTx(ctx, p.db, func(q store.Querier) error {
		refund := &ledger.Entry{
			TraceID:  rec.TraceID,
			UserID:   rec.UserID,
			Account:  rec.DebitAccount,
			Type:     ledger.Credit,
			Category: ledger.CategoryRefund,
			Amount:   rec.Amount + rec.Fee,
			Currency: rec.Currency,
			Status:   ledger.StatusCompleted,
			Meta:     map[string]any{"reason": reason},
		}
		if _, err := p.ledger.CreateEntry(ctx, q, refund); err != nil {
			return err
		}

		if err := p.ledger.UpdateStatusByTrace(ctx, q, rec.TraceID, ledger.StatusFailed); err != nil {
			return err
		}
		return p.records.Finish(ctx, q, rec.ID, settlement.StatusFailed)
	})
	if err != nil {
		return fmt.Errorf("failed to refund settlement %s: %w", rec.ID, err)
	}

	p.log.Warn("settlement refunded",
		"settlement_id", rec.ID, "reference", rec.Reference, "reason", reason, "amount", rec.Amount+rec.Fee)
	return nil
}

func (p *Poller) cycle(outcome string) {
	if p.metrics != nil {
		p.metrics.PollerCycles.WithLabelValues(outcome).Inc()
	}
}

func (p *Poller) record(result string) {
	if p.metrics != nil {
		p.metrics.PollerRecords.WithLabelValues(result).Inc()
	}
}

func categoryFor(k settlement.Kind) ledger.Category {
	switch k {
	case settlement.KindTransfer:
		return ledger.CategoryTransfer
	case settlement.KindBillPayment:
		return ledger.CategoryBillPayment
	case settlement.KindLoan:
		return ledger.CategoryLoan
	case settlement.KindSavings:
		return ledger.CategorySavings
	}
	return ledger.CategorySettlement
}
