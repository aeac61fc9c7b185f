// Package metrics defines the Prometheus instruments emitted by the
// settlement core. These are side-channel observability emissions and never
// part of the correctness contract.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the core emits. Passing a nil Registerer to
// New yields unregistered instruments, which tests rely on.
type Metrics struct {
	LedgerEntries      *prometheus.CounterVec
	PendingSettlements prometheus.Gauge
	PollerCycles       *prometheus.CounterVec
	PollerRecords      *prometheus.CounterVec
	ProviderRequests   *prometheus.CounterVec
	OutboxDispatches   *prometheus.CounterVec
	IdempotencyHits    prometheus.Counter
}

// New constructs and registers the instruments.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LedgerEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_created_total",
			Help: "Ledger entries created, by category, entry type and initial status.",
		}, []string{"category", "entry_type", "status"}),
		PendingSettlements: f.NewGauge(prometheus.GaugeOpts{
			Name: "settlements_pending",
			Help: "Settlement records currently awaiting reconciliation.",
		}),
		PollerCycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poller_cycles_total",
			Help: "Reconciliation poller cycles, by outcome.",
		}, []string{"outcome"}),
		PollerRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poller_records_total",
			Help: "Settlement records handled by the poller, by result.",
		}, []string{"result"}),
		ProviderRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Calls to the external provider, by operation and outcome.",
		}, []string{"op", "outcome"}),
		OutboxDispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_dispatch_total",
			Help: "Outbox events dispatched, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		IdempotencyHits: f.NewCounter(prometheus.CounterOpts{
			Name: "idempotency_hits_total",
			Help: "Requests answered from the idempotency guard.",
		}),
	}
}
