package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(threshold int) (*Breaker, *time.Time) {
	b := NewBreaker(threshold, time.Minute, 30*time.Second)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return errBoom })
		assert.ErrorIs(t, err, errBoom)
	}

	assert.Equal(t, StateOpen, b.State())

	// Open circuit fails fast without attempting the call.
	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenTrialSucceeds(t *testing.T) {
	b, now := newTestBreaker(1)

	require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(31 * time.Second)

	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenTrialFails(t *testing.T) {
	b, now := newTestBreaker(1)

	require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	*now = now.Add(31 * time.Second)

	require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, b.State())

	// Re-opened: fails fast again until the next reset timeout.
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrOpen)
}

func TestBreakerHalfOpenAllowsSingleTrial(t *testing.T) {
	b, now := newTestBreaker(1)

	require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	*now = now.Add(31 * time.Second)

	// First caller takes the trial slot and blocks inside fn; a second caller
	// must be rejected while the trial is in flight.
	require.NoError(t, b.allow())
	assert.ErrorIs(t, b.allow(), ErrOpen)

	b.record(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3)

	require.Error(t, b.Do(func() error { return errBoom }))
	require.Error(t, b.Do(func() error { return errBoom }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return errBoom }))
	require.Error(t, b.Do(func() error { return errBoom }))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerWindowExpiryResetsCount(t *testing.T) {
	b, now := newTestBreaker(2)

	require.Error(t, b.Do(func() error { return errBoom }))
	*now = now.Add(2 * time.Minute)
	require.Error(t, b.Do(func() error { return errBoom }))

	// The first failure fell out of the rolling window.
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
}
