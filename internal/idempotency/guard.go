// Package idempotency maps a caller-supplied key and acting principal to a
// previously produced response, suppressing duplicate execution of financial
// operations.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Savage57/prime-ledger/internal/metrics"
	"github.com/Savage57/prime-ledger/internal/store"
)

// ErrDuplicateKey is returned when Save is called twice for the same
// (key, principal) pair. Callers following the check-then-save protocol
// should never see it.
var ErrDuplicateKey = errors.New("duplicate idempotency key")

// Guard is the idempotency store. It gives at-most-once external-effect
// semantics per (key, principal) within the TTL window; callers remain
// responsible for a fresh key per distinct intended operation.
type Guard struct {
	db      store.DB
	metrics *metrics.Metrics
}

// NewGuard creates a Guard. metrics may be nil.
func NewGuard(db store.DB, m *metrics.Metrics) *Guard {
	return &Guard{db: db, metrics: m}
}

// Check looks up a stored response. It never mutates state and must run
// before any side-effecting work. Expired records simply stop matching.
func (g *Guard) Check(ctx context.Context, key, principal string) (json.RawMessage, bool, error) {
	var response []byte
	err := g.db.QueryRow(ctx,
		`SELECT response FROM idempotency_records WHERE key = $1 AND user_id = $2 AND expires_at > now()`,
		key, principal).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	if g.metrics != nil {
		g.metrics.IdempotencyHits.Inc()
	}
	return response, true, nil
}

// Save persists the response for replay. It must be called exactly once per
// successfully completed logical operation, after its transaction commits.
func (g *Guard) Save(ctx context.Context, key, principal string, response json.RawMessage, ttl time.Duration) error {
	_, err := g.db.Exec(ctx,
		`INSERT INTO idempotency_records (key, user_id, response, expires_at) VALUES ($1, $2, $3, $4)`,
		key, principal, []byte(response), time.Now().UTC().Add(ttl))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return fmt.Errorf("idempotency save failed: %w", err)
	}
	return nil
}

// SweepExpired deletes records past their expiry and returns the count.
// Purely space reclamation; safe to run concurrently with reads and writes.
func (g *Guard) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := g.db.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("idempotency sweep failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
