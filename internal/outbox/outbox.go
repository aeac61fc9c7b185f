// Package outbox durably records external-call intents in the same
// transaction as the state change that justifies them, then dispatches them
// separately. A crash between deciding to act and acting can therefore never
// lose the intent; delivery is at least once.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Savage57/prime-ledger/internal/store"
)

// Event is a durable record of "this side effect must happen".
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	Processed   bool            `json:"processed"`
	RetryCount  int             `json:"retry_count"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// Store persists outbox events.
type Store struct {
	db store.DB
}

// NewStore creates an outbox store.
func NewStore(db store.DB) *Store {
	return &Store{db: db}
}

// Enqueue records an intent. It must be called with the same transaction as
// the ledger and domain writes it is conditioned on: if that transaction
// aborts, no orphaned intent survives.
func (s *Store) Enqueue(ctx context.Context, q store.Querier, topic string, payload any) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outbox payload: %w", err)
	}

	ev := &Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}

	_, err = q.Exec(ctx,
		`INSERT INTO outbox_events (id, topic, payload, created_at) VALUES ($1, $2, $3, $4)`,
		ev.ID, ev.Topic, body, ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return ev, nil
}

// FetchUnprocessed claims a bounded, oldest-first batch of unprocessed
// events. FOR UPDATE SKIP LOCKED plus the claimed_at stamp keep each event
// with at most one in-flight dispatcher even when several run concurrently.
func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE outbox_events SET claimed_at = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE processed = false
			  AND (claimed_at IS NULL OR claimed_at < now() - interval '2 minutes')
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, payload, processed, retry_count, COALESCE(last_error, ''), created_at, processed_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Topic, &payload, &ev.Processed, &ev.RetryCount,
			&ev.LastError, &ev.CreatedAt, &ev.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not guarantee row order.
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

// MarkProcessed finishes an event. A processed event is never redelivered.
func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE outbox_events SET processed = true, processed_at = now() WHERE id = $1 AND processed = false`,
		id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event processed: %w", err)
	}
	return nil
}

// MarkFailed records a dispatch failure. The event is kept for audit and
// redelivered once its claim goes stale.
func (s *Store) MarkFailed(ctx context.Context, id, cause string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2, claimed_at = NULL WHERE id = $1`,
		id, cause)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	return nil
}
