package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Savage57/prime-ledger/internal/store/storetest"
)

func newIntegrationRecord(reference string) *Record {
	return &Record{
		ID:           uuid.New().String(),
		TraceID:      uuid.New().String(),
		UserID:       "u1",
		Kind:         KindTransfer,
		DebitAccount: "user_wallet:u1",
		Counterpart:  "user_wallet:u2",
		Amount:       50000,
		Fee:          50,
		Reference:    reference,
	}
}

// TestDuplicateReferenceIntegration verifies the unique constraint behind the
// retry guarantee: a second record with the same reference never lands.
func TestDuplicateReferenceIntegration(t *testing.T) {
	db := storetest.OpenDB(t)
	ctx := context.Background()
	s := NewStore(db.Pool)

	reference := uuid.New().String()
	require.NoError(t, s.Create(ctx, db.Pool, newIntegrationRecord(reference)))

	err := s.Create(ctx, db.Pool, newIntegrationRecord(reference))
	assert.ErrorIs(t, err, ErrConflict)
}

// TestClaimLifecycleIntegration exercises the claim state machine against the
// real conditional updates, including reclamation of a stale claim.
func TestClaimLifecycleIntegration(t *testing.T) {
	db := storetest.OpenDB(t)
	ctx := context.Background()
	s := NewStore(db.Pool)

	rec := newIntegrationRecord(uuid.New().String())
	require.NoError(t, s.Create(ctx, db.Pool, rec))

	pending, err := s.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	claimed, err := s.Claim(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claimant loses, and a fresh claim hides the record.
	claimed, err = s.Claim(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	pending, err = s.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Age the claim past the grace period: the record becomes fetchable and
	// claimable again, as after a claimant crash.
	_, err = db.Pool.Exec(ctx,
		`UPDATE settlements SET updated_at = now() - interval '10 minutes' WHERE id = $1`, rec.ID)
	require.NoError(t, err)

	pending, err = s.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	claimed, err = s.Claim(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, s.Release(ctx, rec.ID))
	require.NoError(t, s.Finish(ctx, db.Pool, rec.ID, StatusCompleted))

	err = s.Finish(ctx, db.Pool, rec.ID, StatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already terminal")
}
