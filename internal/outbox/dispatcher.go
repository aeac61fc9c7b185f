package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Savage57/prime-ledger/internal/metrics"
)

// Handler performs the side effect an event describes. Handlers must be
// idempotent or guard on the record's provider reference: at-least-once
// delivery means a crash between the call and MarkProcessed redelivers.
type Handler func(ctx context.Context, ev Event) error

// EventSource is the store surface the dispatcher polls.
type EventSource interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, cause string) error
}

// Dispatcher drains the outbox at a fixed interval, routing events to the
// handler registered for their topic.
type Dispatcher struct {
	source    EventSource
	handlers  map[string]Handler
	interval  time.Duration
	batchSize int
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(source EventSource, interval time.Duration, batchSize int, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		source:    source,
		handlers:  make(map[string]Handler),
		interval:  interval,
		batchSize: batchSize,
		log:       log,
		metrics:   m,
	}
}

// Handle registers the handler for a topic. Not safe to call after Run starts.
func (d *Dispatcher) Handle(topic string, h Handler) {
	d.handlers[topic] = h
}

// Run polls until ctx is cancelled. A cycle that fails is logged and retried
// on the next tick; it is never fatal to the process.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := d.RunOnce(ctx); err != nil {
			d.log.Error("outbox dispatch cycle failed", "error", err)
		}
	}
}

// RunOnce drains one batch. Per-event failures are recorded and do not abort
// the batch.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	events, err := d.source.FetchUnprocessed(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("fetch unprocessed events: %w", err)
	}

	for _, ev := range events {
		h, ok := d.handlers[ev.Topic]
		if !ok {
			d.log.Error("no handler registered for outbox topic", "topic", ev.Topic, "event_id", ev.ID)
			if err := d.source.MarkFailed(ctx, ev.ID, "no handler for topic "+ev.Topic); err != nil {
				d.log.Error("failed to record outbox failure", "event_id", ev.ID, "error", err)
			}
			d.observe(ev.Topic, "unroutable")
			continue
		}

		if err := h(ctx, ev); err != nil {
			d.log.Error("outbox dispatch failed", "topic", ev.Topic, "event_id", ev.ID, "error", err)
			if err := d.source.MarkFailed(ctx, ev.ID, err.Error()); err != nil {
				d.log.Error("failed to record outbox failure", "event_id", ev.ID, "error", err)
			}
			d.observe(ev.Topic, "failed")
			continue
		}

		if err := d.source.MarkProcessed(ctx, ev.ID); err != nil {
			// The side effect happened but the mark did not; the event will
			// redeliver and the handler's providerRef guard must absorb it.
			d.log.Error("failed to mark outbox event processed", "event_id", ev.ID, "error", err)
			continue
		}
		d.observe(ev.Topic, "ok")
	}
	return nil
}

func (d *Dispatcher) observe(topic, outcome string) {
	if d.metrics == nil {
		return
	}
	d.metrics.OutboxDispatches.WithLabelValues(topic, outcome).Inc()
}
