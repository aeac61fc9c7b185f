package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Savage57/prime-ledger/internal/metrics"
	"github.com/Savage57/prime-ledger/internal/money"
	"github.com/Savage57/prime-ledger/internal/store"
)

// Store persists ledger entries. Write methods take a store.Querier so the
// caller decides the atomic unit: inside an orchestrator they receive the
// enclosing transaction, standalone they receive the pool.
type Store struct {
	metrics *metrics.Metrics
}

// NewStore creates a ledger store. metrics may be nil.
func NewStore(m *metrics.Metrics) *Store {
	return &Store{metrics: m}
}

const insertEntrySQL = `
	INSERT INTO ledger_entries (
		id, trace_id, user_id, account, entry_type, category, subtype,
		amount, currency, balance_before, balance_after, status, related_to,
		idempotency_key, meta, created_at, processed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

// CreateEntry inserts one posting inside the caller-supplied atomic unit.
func (s *Store) CreateEntry(ctx context.Context, q store.Querier, e *Entry) (*Entry, error) {
	if !money.IsValidAmount(e.Amount) {
		return nil, fmt.Errorf("ledger entry amount %d: %w", e.Amount, money.ErrInvalidAmount)
	}
	if e.Account == "" {
		return nil, fmt.Errorf("ledger entry requires an account")
	}
	if e.Type != Debit && e.Type != Credit {
		return nil, fmt.Errorf("ledger entry type must be DEBIT or CREDIT, got %q", e.Type)
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.TraceID == "" {
		e.TraceID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.Currency == "" {
		e.Currency = money.DefaultCurrency
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status.Terminal() && e.ProcessedAt == nil {
		now := time.Now().UTC()
		e.ProcessedAt = &now
	}

	meta, err := metaJSON(e.Meta)
	if err != nil {
		return nil, err
	}

	_, err = q.Exec(ctx, insertEntrySQL,
		e.ID, e.TraceID, nullable(e.UserID), e.Account, e.Type, e.Category, nullable(e.Subtype),
		e.Amount, e.Currency, e.BalanceBefore, e.BalanceAfter, e.Status, nullable(e.RelatedTo),
		nullable(e.IdempotencyKey), meta, e.CreatedAt, e.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	s.count(e)
	return e, nil
}

// DoubleEntryParams describes an atomic two-account movement. The optional
// balance snapshots record each account's balance as observed inside the same
// transaction; when set, the entries carry before/after values derived from
// them.
type DoubleEntryParams struct {
	TraceID        string
	FromAccount    string
	ToAccount      string
	Amount         int64
	Category       Category
	Subtype        string
	UserID         string
	Currency       string
	Status         Status // defaults to PENDING
	IdempotencyKey string
	Meta           map[string]any

	FromBalanceBefore *int64
	ToBalanceBefore   *int64
}

// CreateDoubleEntry inserts a DEBIT on FromAccount and a CREDIT on ToAccount
// with the same trace id and amount, cross-linked via related_to. This is the
// only sanctioned way to move value between two accounts: both rows land in
// the caller's transaction, so a partial failure can never leave an unpaired
// posting behind.
func (s *Store) CreateDoubleEntry(ctx context.Context, q store.Querier, p DoubleEntryParams) (*Entry, *Entry, error) {
	if !money.IsValidAmount(p.Amount) {
		return nil, nil, fmt.Errorf("double entry amount %d: %w", p.Amount, money.ErrInvalidAmount)
	}
	if p.FromAccount == "" || p.ToAccount == "" {
		return nil, nil, fmt.Errorf("double entry requires both accounts")
	}
	if p.FromAccount == p.ToAccount {
		return nil, nil, fmt.Errorf("double entry accounts must be different")
	}

	if p.TraceID == "" {
		p.TraceID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}

	debitID := uuid.New().String()
	creditID := uuid.New().String()

	debit := &Entry{
		ID:             debitID,
		TraceID:        p.TraceID,
		UserID:         p.UserID,
		Account:        p.FromAccount,
		Type:           Debit,
		Category:       p.Category,
		Subtype:        p.Subtype,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         p.Status,
		RelatedTo:      creditID,
		IdempotencyKey: p.IdempotencyKey,
		Meta:           p.Meta,
	}
	credit := &Entry{
		ID:             creditID,
		TraceID:        p.TraceID,
		UserID:         p.UserID,
		Account:        p.ToAccount,
		Type:           Credit,
		Category:       p.Category,
		Subtype:        p.Subtype,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         p.Status,
		RelatedTo:      debitID,
		IdempotencyKey: p.IdempotencyKey,
		Meta:           p.Meta,
	}

	if p.FromBalanceBefore != nil {
		after := *p.FromBalanceBefore - p.Amount
		debit.BalanceBefore = p.FromBalanceBefore
		debit.BalanceAfter = &after
	}
	if p.ToBalanceBefore != nil {
		after := *p.ToBalanceBefore + p.Amount
		credit.BalanceBefore = p.ToBalanceBefore
		credit.BalanceAfter = &after
	}

	if _, err := s.CreateEntry(ctx, q, debit); err != nil {
		return nil, nil, fmt.Errorf("failed to post debit entry: %w", err)
	}
	if _, err := s.CreateEntry(ctx, q, credit); err != nil {
		return nil, nil, fmt.Errorf("failed to post credit entry: %w", err)
	}

	return debit, credit, nil
}

// UpdateStatus moves a single entry from PENDING to a terminal status.
func (s *Store) UpdateStatus(ctx context.Context, q store.Querier, entryID string, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("ledger status can only transition to COMPLETED or FAILED, got %q", status)
	}

	tag, err := q.Exec(ctx,
		`UPDATE ledger_entries SET status = $1, processed_at = now() WHERE id = $2 AND status = 'PENDING'`,
		status, entryID)
	if err != nil {
		return fmt.Errorf("failed to update entry status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &InvalidStateTransitionError{EntryID: entryID, To: status}
	}
	return nil
}

// UpdateStatusByTrace moves every PENDING entry of a trace to a terminal
// status. Entries already terminal are left untouched; if the trace holds no
// pending entries at all the transition is invalid.
func (s *Store) UpdateStatusByTrace(ctx context.Context, q store.Querier, traceID string, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("ledger status can only transition to COMPLETED or FAILED, got %q", status)
	}

	tag, err := q.Exec(ctx,
		`UPDATE ledger_entries SET status = $1, processed_at = now() WHERE trace_id = $2 AND status = 'PENDING'`,
		status, traceID)
	if err != nil {
		return fmt.Errorf("failed to update trace status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &InvalidStateTransitionError{TraceID: traceID, To: status}
	}
	return nil
}

const selectEntrySQL = `
	SELECT id, trace_id, COALESCE(user_id, ''), account, entry_type, category,
		COALESCE(subtype, ''), amount, currency, balance_before, balance_after,
		status, COALESCE(related_to::text, ''), COALESCE(idempotency_key, ''),
		meta, created_at, processed_at
	FROM ledger_entries`

// GetByTraceID returns every entry of a trace in creation order.
func (s *Store) GetByTraceID(ctx context.Context, q store.Querier, traceID string) ([]Entry, error) {
	rows, err := q.Query(ctx, selectEntrySQL+` WHERE trace_id = $1 ORDER BY created_at, id`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace %s: %w", traceID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(
			&e.ID, &e.TraceID, &e.UserID, &e.Account, &e.Type, &e.Category,
			&e.Subtype, &e.Amount, &e.Currency, &e.BalanceBefore, &e.BalanceAfter,
			&e.Status, &e.RelatedTo, &e.IdempotencyKey, &meta, &e.CreatedAt, &e.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AccountBalance derives an account's balance from its postings. Debits count
// at every status: a PENDING debit is an in-flight hold, and a FAILED debit is
// offset by the refund credit posted in the same transaction that failed it.
// Credits count once COMPLETED.
func (s *Store) AccountBalance(ctx context.Context, q store.Querier, account string) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE
			WHEN entry_type = 'DEBIT' THEN -amount
			WHEN status = 'COMPLETED' THEN amount
			ELSE 0 END), 0)
		FROM ledger_entries
		WHERE account = $1`,
		account).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to compute balance for %s: %w", account, err)
	}
	return balance, nil
}

// FindInconsistencies scans for traces whose fully-completed entries do not
// sum to zero, and traces stuck in PENDING beyond staleAfter. Read-only and
// safe to run repeatedly.
func (s *Store) FindInconsistencies(ctx context.Context, q store.Querier, staleAfter time.Duration) ([]Inconsistency, error) {
	var out []Inconsistency

	rows, err := q.Query(ctx, `
		SELECT trace_id::text
		FROM ledger_entries
		GROUP BY trace_id
		HAVING bool_and(status = 'COMPLETED')
		   AND SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE -amount END) <> 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for unbalanced traces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var traceID string
		if err := rows.Scan(&traceID); err != nil {
			return nil, fmt.Errorf("failed to scan unbalanced trace: %w", err)
		}
		out = append(out, Inconsistency{TraceID: traceID, Reason: "completed entries do not sum to zero"})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stale, err := q.Query(ctx, `
		SELECT DISTINCT trace_id::text
		FROM ledger_entries
		WHERE status = 'PENDING' AND created_at < now() - $1::interval`,
		durationInterval(staleAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to scan for stale traces: %w", err)
	}
	defer stale.Close()
	for stale.Next() {
		var traceID string
		if err := stale.Scan(&traceID); err != nil {
			return nil, fmt.Errorf("failed to scan stale trace: %w", err)
		}
		out = append(out, Inconsistency{TraceID: traceID, Reason: "entries pending beyond staleness threshold"})
	}
	return out, stale.Err()
}

func (s *Store) count(e *Entry) {
	if s.metrics == nil {
		return
	}
	s.metrics.LedgerEntries.WithLabelValues(string(e.Category), string(e.Type), string(e.Status)).Inc()
}

func metaJSON(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry meta: %w", err)
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func durationInterval(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}
