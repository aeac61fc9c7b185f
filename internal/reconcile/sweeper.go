package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// GuardSweeper is the idempotency surface the sweeper needs.
type GuardSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically reclaims expired idempotency records.
type Sweeper struct {
	guard    GuardSweeper
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper creates a sweeper. log may be nil.
func NewSweeper(guard GuardSweeper, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{guard: guard, interval: interval, log: log}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.guard.SweepExpired(ctx)
			if err != nil {
				s.log.Error("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.log.Info("idempotency records swept", "count", n)
			}
		}
	}
}
