package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks order lifecycle activity.
type OrderMetrics struct {
	checkoutDuration prometheus.Histogram
	transitions      *prometheus.CounterVec
	stockConflicts   prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	checkoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions",
		Help: "Order status transitions by resulting status.",
	}, []string{"status"})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_conflicts",
		Help: "Checkouts rejected because an item ran out of stock.",
	})
	reg.MustRegister(checkoutDuration, transitions, stockConflicts)
	return &OrderMetrics{
		checkoutDuration: checkoutDuration,
		transitions:      transitions,
		stockConflicts:   stockConflicts,
	}
}

// ObserveCheckout records the duration of a checkout transaction.
func (o *OrderMetrics) ObserveCheckout(duration time.Duration) {
	if o == nil || o.checkoutDuration == nil {
		return
	}
	o.checkoutDuration.Observe(duration.Seconds())
}

// IncTransition increments the transition counter for the resulting status.
func (o *OrderMetrics) IncTransition(status string) {
	if o == nil || o.transitions == nil {
		return
	}
	o.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncStockConflict increments the out-of-stock rejection counter.
func (o *OrderMetrics) IncStockConflict() {
	if o == nil || o.stockConflicts == nil {
		return
	}
	o.stockConflicts.Inc()
}
