package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Savage57/prime-ledger/internal/idempotency"
	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/outbox"
	"github.com/Savage57/prime-ledger/internal/store"
)

// Guard is the idempotency surface the engine needs.
type Guard interface {
	Check(ctx context.Context, key, principal string) (json.RawMessage, bool, error)
	Save(ctx context.Context, key, principal string, response json.RawMessage, ttl time.Duration) error
}

// Ledger is the posting surface the engine needs.
type Ledger interface {
	CreateEntry(ctx context.Context, q store.Querier, e *ledger.Entry) (*ledger.Entry, error)
	CreateDoubleEntry(ctx context.Context, q store.Querier, p ledger.DoubleEntryParams) (*ledger.Entry, *ledger.Entry, error)
	AccountBalance(ctx context.Context, q store.Querier, account string) (int64, error)
}

// Outbox is the intent-recording surface the engine needs.
type Outbox interface {
	Enqueue(ctx context.Context, q store.Querier, topic string, payload any) (*outbox.Event, error)
}

// Records is the settlement-record surface the engine needs.
type Records interface {
	Create(ctx context.Context, q store.Querier, rec *Record) error
}

// Engine composes guard, ledger, outbox and record writes into one atomic
// unit per request. The orchestrators (transfer, bill payment, savings, loan)
// are thin wrappers that translate product semantics into engine calls.
type Engine struct {
	db      store.DB
	guard   Guard
	ledger  Ledger
	outbox  Outbox
	records Records
	ttl     time.Duration
	log     *slog.Logger
}

// NewEngine creates an engine. log may be nil.
func NewEngine(db store.DB, guard Guard, lg Ledger, ob Outbox, records Records, ttl time.Duration, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Engine{db: db, guard: guard, ledger: lg, outbox: ob, records: records, ttl: ttl, log: log}
}

// referenceNamespace scopes references derived from idempotency keys.
var referenceNamespace = uuid.MustParse("b7a9c6d4-2e51-4f0a-9d83-6c1e5f2a8b07")

// referenceFor derives the settlement reference from (idempotency key,
// principal). A retry that lands after the commit but before the idempotency
// save regenerates the same reference and hits the unique constraint,
// surfacing ErrConflict instead of a second posting. Unkeyed requests get a
// random reference.
func referenceFor(key, principal string) string {
	if key == "" {
		return uuid.New().String()
	}
	return uuid.NewSHA1(referenceNamespace, []byte(principal+"\x00"+key)).String()
}

// Receipt is the caller-facing result of a settlement request. It is also the
// exact payload stored for idempotent replay.
type Receipt struct {
	SettlementID string `json:"settlement_id"`
	TraceID      string `json:"trace_id"`
	Reference    string `json:"reference"`
	Kind         Kind   `json:"kind"`
	Status       Status `json:"status"`
	Amount       int64  `json:"amount"`
	Fee          int64  `json:"fee,omitempty"`
	Currency     string `json:"currency"`
}

// InitiateParams describes a provider-bound settlement request.
type InitiateParams struct {
	Kind           Kind
	UserID         string
	IdempotencyKey string
	DebitAccount   string
	Counterpart    string
	Amount         int64
	Fee            int64
	Category       ledger.Category
	Subtype        string
	Topic          string
	Remark         string
	TransferType   string
	Meta           map[string]any
}

// InitiatePending runs the provider-bound initiation protocol: replay check,
// then one transaction holding the settlement record, a PENDING debit for
// amount plus fee, and the outbox dispatch intent, then the idempotency save.
// No provider I/O happens here; the reconciler resolves the pending posting.
func (e *Engine) InitiatePending(ctx context.Context, p InitiateParams) (*Receipt, error) {
	if replay, ok, err := e.checkReplay(ctx, p.IdempotencyKey, p.UserID); err != nil || ok {
		return replay, err
	}

	rec := &Record{
		ID:           uuid.New().String(),
		TraceID:      uuid.New().String(),
		UserID:       p.UserID,
		Kind:         p.Kind,
		DebitAccount: p.DebitAccount,
		Counterpart:  p.Counterpart,
		Amount:       p.Amount,
		Fee:          p.Fee,
		Reference:    referenceFor(p.IdempotencyKey, p.UserID),
		Meta:         p.Meta,
	}

	err := store.WithTx(ctx, e.db, func(q store.Querier) error {
		if err := e.records.Create(ctx, q, rec); err != nil {
			return err
		}

		debit := &ledger.Entry{
			TraceID:        rec.TraceID,
			UserID:         p.UserID,
			Account:        p.DebitAccount,
			Type:           ledger.Debit,
			Category:       p.Category,
			Subtype:        p.Subtype,
			Amount:         p.Amount + p.Fee,
			Status:         ledger.StatusPending,
			IdempotencyKey: p.IdempotencyKey,
			Meta:           p.Meta,
		}
		if _, err := e.ledger.CreateEntry(ctx, q, debit); err != nil {
			return err
		}

		_, err := e.outbox.Enqueue(ctx, q, p.Topic, DispatchPayload{
			SettlementID: rec.ID,
			Reference:    rec.Reference,
			FromAccount:  p.DebitAccount,
			ToAccount:    p.Counterpart,
			Amount:       p.Amount,
			Remark:       p.Remark,
			TransferType: p.TransferType,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		SettlementID: rec.ID,
		TraceID:      rec.TraceID,
		Reference:    rec.Reference,
		Kind:         rec.Kind,
		Status:       rec.Status,
		Amount:       rec.Amount,
		Fee:          rec.Fee,
		Currency:     rec.Currency,
	}
	e.saveReplay(ctx, p.IdempotencyKey, p.UserID, receipt)
	return receipt, nil
}

// InternalMovement is one balanced posting pair of a synchronous settlement.
type InternalMovement struct {
	FromAccount string
	ToAccount   string
	Amount      int64
	Category    ledger.Category
	Subtype     string
}

// SettleParams describes a settlement resolved entirely inside our own books.
type SettleParams struct {
	Kind           Kind
	UserID         string
	IdempotencyKey string
	DebitAccount   string
	Counterpart    string
	Amount         int64
	Fee            int64
	Movements      []InternalMovement
	Meta           map[string]any
}

// SettleInternal runs a settlement that never leaves our books, such as a
// savings movement. All postings land COMPLETED in one transaction; there is
// nothing for the reconciler to resolve.
func (e *Engine) SettleInternal(ctx context.Context, p SettleParams) (*Receipt, error) {
	if replay, ok, err := e.checkReplay(ctx, p.IdempotencyKey, p.UserID); err != nil || ok {
		return replay, err
	}
	if len(p.Movements) == 0 {
		return nil, fmt.Errorf("internal settlement requires at least one movement")
	}

	rec := &Record{
		ID:           uuid.New().String(),
		TraceID:      uuid.New().String(),
		UserID:       p.UserID,
		Kind:         p.Kind,
		DebitAccount: p.DebitAccount,
		Counterpart:  p.Counterpart,
		Amount:       p.Amount,
		Fee:          p.Fee,
		Status:       StatusCompleted,
		Reference:    referenceFor(p.IdempotencyKey, p.UserID),
		Meta:         p.Meta,
	}

	err := store.WithTx(ctx, e.db, func(q store.Querier) error {
		if err := e.records.Create(ctx, q, rec); err != nil {
			return err
		}
		for _, m := range p.Movements {
			// Balances observed in the same transaction as the postings they
			// snapshot.
			fromBefore, err := e.ledger.AccountBalance(ctx, q, m.FromAccount)
			if err != nil {
				return err
			}
			toBefore, err := e.ledger.AccountBalance(ctx, q, m.ToAccount)
			if err != nil {
				return err
			}

			_, _, err = e.ledger.CreateDoubleEntry(ctx, q, ledger.DoubleEntryParams{
				TraceID:           rec.TraceID,
				FromAccount:       m.FromAccount,
				ToAccount:         m.ToAccount,
				Amount:            m.Amount,
				Category:          m.Category,
				Subtype:           m.Subtype,
				UserID:            p.UserID,
				Status:            ledger.StatusCompleted,
				IdempotencyKey:    p.IdempotencyKey,
				Meta:              p.Meta,
				FromBalanceBefore: &fromBefore,
				ToBalanceBefore:   &toBefore,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		SettlementID: rec.ID,
		TraceID:      rec.TraceID,
		Reference:    rec.Reference,
		Kind:         rec.Kind,
		Status:       rec.Status,
		Amount:       rec.Amount,
		Fee:          rec.Fee,
		Currency:     rec.Currency,
	}
	e.saveReplay(ctx, p.IdempotencyKey, p.UserID, receipt)
	return receipt, nil
}

func (e *Engine) checkReplay(ctx context.Context, key, principal string) (*Receipt, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	stored, ok, err := e.guard.Check(ctx, key, principal)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	var receipt Receipt
	if err := json.Unmarshal(stored, &receipt); err != nil {
		return nil, false, fmt.Errorf("failed to decode replayed receipt: %w", err)
	}
	return &receipt, true, nil
}

// saveReplay records the receipt after commit. A failure here is survivable:
// the committed work stands, and a retry with the same key lands on the unique
// settlement reference or the unique idempotency record instead.
func (e *Engine) saveReplay(ctx context.Context, key, principal string, receipt *Receipt) {
	if key == "" {
		return
	}
	body, err := json.Marshal(receipt)
	if err != nil {
		e.log.Warn("failed to encode receipt for replay", "error", err)
		return
	}
	if err := e.guard.Save(ctx, key, principal, body, e.ttl); err != nil && !errors.Is(err, idempotency.ErrDuplicateKey) {
		e.log.Warn("failed to save idempotency record",
			"key", key, "settlement_id", receipt.SettlementID, "error", err)
	}
}
