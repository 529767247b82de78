package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger-mirror bridge.
type Metrics struct {
	// Applies by result: "applied", "duplicate", "error".
	AppliesTotal *prometheus.CounterVec

	// Retries performed by the background worker.
	RetriesTotal prometheus.Counter

	// Events that exhausted retries. Anything above zero means the
	// projection needs operator attention.
	ReconciliationErrors prometheus.Counter

	// Events replayed during startup resync.
	ResyncReplayed prometheus.Counter
}

// New creates a new Metrics instance with all bridge metrics registered.
func New() *Metrics {
	return &Metrics{
		AppliesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ecotrace_projection_applies_total",
			Help: "Committed events applied to the projection by result",
		}, []string{"result"}),

		RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ecotrace_projection_retries_total",
			Help: "Retries of failed projection applies",
		}),

		ReconciliationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ecotrace_projection_reconciliation_errors_total",
			Help: "Events that could not be applied after all retries",
		}),

		ResyncReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ecotrace_projection_resync_replayed_total",
			Help: "Events replayed from the ledger during startup resync",
		}),
	}
}

// ObserveApply records one apply attempt result.
func (m *Metrics) ObserveApply(result string) {
	if m != nil {
		m.AppliesTotal.WithLabelValues(result).Inc()
	}
}
