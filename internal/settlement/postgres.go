package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Savage57/prime-ledger/internal/money"
	"github.com/Savage57/prime-ledger/internal/store"
)

// Store persists settlement records.
type Store struct {
	db store.DB
}

// NewStore creates a settlement store.
func NewStore(db store.DB) *Store {
	return &Store{db: db}
}

// Create inserts a record inside the caller's atomic unit. A duplicate
// reference surfaces ErrConflict.
func (s *Store) Create(ctx context.Context, q store.Querier, rec *Record) error {
	if !money.IsValidAmount(rec.Amount) {
		return fmt.Errorf("settlement amount %d: %w", rec.Amount, money.ErrInvalidAmount)
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.Currency == "" {
		rec.Currency = money.DefaultCurrency
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	meta := []byte("{}")
	if rec.Meta != nil {
		var err error
		if meta, err = json.Marshal(rec.Meta); err != nil {
			return fmt.Errorf("failed to encode settlement meta: %w", err)
		}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO settlements (
			id, trace_id, user_id, kind, debit_account, counterpart, amount,
			fee, currency, status, reference, provider_ref, meta, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, $15)`,
		rec.ID, rec.TraceID, rec.UserID, rec.Kind, rec.DebitAccount, rec.Counterpart, rec.Amount,
		rec.Fee, rec.Currency, rec.Status, rec.Reference, rec.ProviderRef, meta, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

const selectRecordSQL = `
	SELECT id, trace_id, user_id, kind, debit_account, counterpart, amount,
		fee, currency, status, reference, COALESCE(provider_ref, ''), meta,
		created_at, updated_at
	FROM settlements`

// GetByID fetches one record.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	return s.get(ctx, selectRecordSQL+` WHERE id = $1`, id)
}

// GetByReference fetches one record by its externally visible reference.
func (s *Store) GetByReference(ctx context.Context, reference string) (*Record, error) {
	return s.get(ctx, selectRecordSQL+` WHERE reference = $1`, reference)
}

func (s *Store) get(ctx context.Context, sql string, arg any) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return rec, nil
}

// staleClaimSQL matches PROCESSING rows whose claimant went away. A crashed
// poller leaves its claim behind; after the grace period the record is
// eligible again.
const staleClaimSQL = `(status = 'PROCESSING' AND updated_at < now() - interval '5 minutes')`

// FetchPending returns the oldest records awaiting reconciliation, bounded by
// limit. Stale PROCESSING claims are included so a crashed claimant cannot
// strand a record.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		selectRecordSQL+` WHERE status = 'PENDING' OR `+staleClaimSQL+` ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending settlements: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// CountPending reports how many records await reconciliation.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM settlements WHERE status = 'PENDING'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending settlements: %w", err)
	}
	return n, nil
}

// Claim atomically takes a PENDING record, or a stale PROCESSING one, for
// processing. Exactly one of any number of concurrent claimants wins; the
// rest see false and move on.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE settlements SET status = 'PROCESSING', updated_at = now()
		 WHERE id = $1 AND (status = 'PENDING' OR `+staleClaimSQL+`)`,
		id)
	if err != nil {
		return false, fmt.Errorf("failed to claim settlement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release returns a claimed record to PENDING for the next cycle.
func (s *Store) Release(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE settlements SET status = 'PENDING', updated_at = now() WHERE id = $1 AND status = 'PROCESSING'`,
		id)
	if err != nil {
		return fmt.Errorf("failed to release settlement: %w", err)
	}
	return nil
}

// Finish moves a record to a terminal status inside the caller's atomic unit.
func (s *Store) Finish(ctx context.Context, q store.Querier, id string, status Status) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("settlement can only finish COMPLETED or FAILED, got %q", status)
	}
	tag, err := q.Exec(ctx,
		`UPDATE settlements SET status = $1, updated_at = now() WHERE id = $2 AND status IN ('PENDING', 'PROCESSING')`,
		status, id)
	if err != nil {
		return fmt.Errorf("failed to finish settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settlement %s is already terminal", id)
	}
	return nil
}

// SetProviderRef stores the provider's reference after a successful dispatch.
// Dispatch handlers check it before calling the provider again: a redelivered
// outbox event with a ref already present is a no-op.
func (s *Store) SetProviderRef(ctx context.Context, id, providerRef string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE settlements SET provider_ref = $2, updated_at = now() WHERE id = $1`,
		id, providerRef)
	if err != nil {
		return fmt.Errorf("failed to set provider ref: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var meta []byte
	if err := row.Scan(
		&rec.ID, &rec.TraceID, &rec.UserID, &rec.Kind, &rec.DebitAccount, &rec.Counterpart,
		&rec.Amount, &rec.Fee, &rec.Currency, &rec.Status, &rec.Reference, &rec.ProviderRef,
		&meta, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &rec.Meta)
	}
	return &rec, nil
}
