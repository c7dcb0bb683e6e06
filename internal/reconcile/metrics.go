package reconcile

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomePaid              = "paid"
	OutcomeAlreadyPaid       = "already_paid"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeError             = "error"
)

type Metrics struct {
	settlements     *prometheus.CounterVec
	duration        prometheus.Histogram
	publishFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_settlements_total",
				Help: "Settlement attempts by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "storefront_settlement_duration_seconds",
				Help:    "Duration of the settlement transaction in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		publishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "storefront_order_event_publish_failed_total",
				Help: "Count of order.paid events that could not be published.",
			},
		),
	}
	reg.MustRegister(m.settlements, m.duration, m.publishFailures)
	return m
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) publishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}
