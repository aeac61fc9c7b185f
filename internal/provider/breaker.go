package provider

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned when the breaker rejects a call without attempting the
// network.
var ErrOpen = errors.New("circuit breaker open")

// Breaker protects the ledger and outbox machinery from cascading retries
// against a down provider. Failures are counted in a rolling window while
// CLOSED; crossing the threshold opens the circuit for resetTimeout, after
// which a single trial call decides between CLOSED and OPEN again. State is
// process-local and mutex-guarded: parallel callers increment the counters
// concurrently.
type Breaker struct {
	mu sync.Mutex

	state         BreakerState
	failures      int
	windowStart   time.Time
	openedAt      time.Time
	trialInFlight bool

	threshold    int
	window       time.Duration
	resetTimeout time.Duration

	now func() time.Time
}

// NewBreaker creates a breaker that opens after threshold failures within
// window and retries after resetTimeout.
func NewBreaker(threshold int, window, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		state:        StateClosed,
		threshold:    threshold,
		window:       window,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if b.window > 0 && !b.windowStart.IsZero() && b.now().Sub(b.windowStart) > b.window {
			b.failures = 0
			b.windowStart = time.Time{}
		}
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return ErrOpen
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.trialInFlight = false
		}
		b.failures = 0
		b.windowStart = time.Time{}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		b.trialInFlight = false
	case StateClosed:
		if b.windowStart.IsZero() {
			b.windowStart = b.now()
		}
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.windowStart = time.Time{}
		}
	}
}
