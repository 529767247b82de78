package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application-wide Prometheus metrics. Domain packages that
// need more specific instruments register their own.
type Metrics struct {
	// Ledger operations by kind and outcome ("ok" or the error code).
	OperationsTotal *prometheus.CounterVec

	// End-to-end latency of ledger operations by kind.
	OperationLatency *prometheus.HistogramVec

	// Committed events fanned out to live subscribers vs dropped on full
	// or missing channels.
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec

	// Live subscriber connections per channel.
	Subscribers *prometheus.GaugeVec
}

// New creates and registers all application metrics.
func New() *Metrics {
	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ecotrace_operations_total",
			Help: "Total ledger operations by kind and outcome",
		}, []string{"kind", "outcome"}),

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecotrace_operation_duration_seconds",
			Help:    "Duration of ledger operations including commit and projection write",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ecotrace_events_published_total",
			Help: "Committed events delivered to a channel",
		}, []string{"channel"}),

		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ecotrace_events_dropped_total",
			Help: "Committed events dropped because a subscriber could not keep up",
		}, []string{"channel"}),

		Subscribers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ecotrace_event_subscribers",
			Help: "Currently connected live event subscribers per channel",
		}, []string{"channel"}),
	}
}

// ObserveOperation records one completed operation.
func (m *Metrics) ObserveOperation(kind, outcome string, d time.Duration) {
	if m != nil {
		m.OperationsTotal.WithLabelValues(kind, outcome).Inc()
		m.OperationLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}
