package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Savage57/prime-ledger/internal/store/storetest"
)

// TestOutboxClaimIntegration exercises the claiming fetch against a real
// database: oldest-first ordering, claim exclusivity, expiry of a stale claim
// and redelivery after a failure.
func TestOutboxClaimIntegration(t *testing.T) {
	db := storetest.OpenDB(t)
	ctx := context.Background()
	s := NewStore(db.Pool)

	first, err := s.Enqueue(ctx, db.Pool, "transfer.initiate", map[string]any{"settlement_id": "s1"})
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, db.Pool, "transfer.initiate", map[string]any{"settlement_id": "s2"})
	require.NoError(t, err)

	events, err := s.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)

	// Both events are claimed now; a concurrent dispatcher sees nothing.
	events, err = s.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	// An expired claim makes the event deliverable again.
	_, err = db.Pool.Exec(ctx,
		`UPDATE outbox_events SET claimed_at = now() - interval '3 minutes' WHERE id = $1`, first.ID)
	require.NoError(t, err)

	events, err = s.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, first.ID, events[0].ID)

	// Processed events are gone for good; failed ones come back with their
	// retry count and cause.
	require.NoError(t, s.MarkProcessed(ctx, first.ID))
	require.NoError(t, s.MarkFailed(ctx, second.ID, "connection refused"))

	events, err = s.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, second.ID, events[0].ID)
	assert.Equal(t, 1, events[0].RetryCount)
	assert.Equal(t, "connection refused", events[0].LastError)
}
