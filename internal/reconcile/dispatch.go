package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Savage57/prime-ledger/internal/outbox"
	"github.com/Savage57/prime-ledger/internal/provider"
	"github.com/Savage57/prime-ledger/internal/settlement"
)

// DispatchRecords is the settlement-record surface the dispatch handler
// needs.
type DispatchRecords interface {
	GetByID(ctx context.Context, id string) (*settlement.Record, error)
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
	SetProviderRef(ctx context.Context, id, providerRef string) error
}

// DispatcherGateway is the provider surface the dispatch handler needs.
type DispatcherGateway interface {
	Transfer(ctx context.Context, req provider.TransferRequest) (*provider.TransferResult, error)
}

// NewDispatchHandler builds the outbox handler that performs the initial
// provider call for a settlement. Delivery is at least once, so the handler
// is idempotent: a record that is already terminal or already carries a
// provider reference is acknowledged without calling out again.
func NewDispatchHandler(records DispatchRecords, gateway DispatcherGateway, log *slog.Logger) outbox.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx context.Context, ev outbox.Event) error {
		var payload settlement.DispatchPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode dispatch payload: %w", err)
		}

		rec, err := records.GetByID(ctx, payload.SettlementID)
		if err != nil {
			return err
		}
		if rec.Status == settlement.StatusCompleted || rec.Status == settlement.StatusFailed {
			return nil
		}
		if rec.ProviderRef != "" {
			return nil
		}

		// Claim before provider I/O so a poller refunding the record at the
		// timeout boundary cannot race the call. A lost claim fails the event
		// so redelivery re-reads the record's fate.
		claimed, err := records.Claim(ctx, rec.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("settlement %s is claimed elsewhere, retrying dispatch", rec.ID)
		}

		res, err := gateway.Transfer(ctx, provider.TransferRequest{
			FromAccount:  payload.FromAccount,
			ToAccount:    payload.ToAccount,
			Amount:       payload.Amount,
			Reference:    payload.Reference,
			Remark:       payload.Remark,
			TransferType: payload.TransferType,
		})
		if err != nil {
			if relErr := records.Release(ctx, rec.ID); relErr != nil {
				log.Error("failed to release settlement after dispatch error",
					"settlement_id", rec.ID, "error", relErr)
			}
			return fmt.Errorf("provider dispatch for settlement %s: %w", rec.ID, err)
		}

		ref := res.SessionID
		if ref == "" {
			ref = res.TxnID
		}
		if ref != "" {
			if err := records.SetProviderRef(ctx, rec.ID, ref); err != nil {
				return err
			}
		}
		if err := records.Release(ctx, rec.ID); err != nil {
			return err
		}

		log.Info("settlement dispatched to provider",
			"settlement_id", rec.ID, "reference", rec.Reference, "provider_ref", ref, "status", res.Status)
		return nil
	}
}
