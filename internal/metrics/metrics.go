package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// CartMetrics records cart store and checkout activity. A nil *CartMetrics
// is valid and records nothing.
type CartMetrics struct {
	cartsCreated       prometheus.Counter
	capacityRejections prometheus.Counter
	cartsCleared       *prometheus.CounterVec
	itemsAdded         prometheus.Counter
	restores           *prometheus.CounterVec
	persistFailures    prometheus.Counter
	checkouts          *prometheus.CounterVec
	checkoutAmount     prometheus.Histogram
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return nil
	}
	m := &CartMetrics{
		cartsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_carts_created_total",
			Help: "Carts opened on a terminal.",
		}),
		capacityRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_cart_capacity_rejections_total",
			Help: "Cart creations refused because the terminal was at capacity.",
		}),
		cartsCleared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_carts_cleared_total",
			Help: "Carts reset to their default contents.",
		}, []string{"reason"}),
		itemsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_cart_items_added_total",
			Help: "Services added to carts, merges included.",
		}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_cart_restore_total",
			Help: "Cart state restores at startup by outcome.",
		}, []string{"reason"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_cart_persist_failures_total",
			Help: "Failed writes of cart state to storage.",
		}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_checkouts_total",
			Help: "Checkout attempts by result.",
		}, []string{"result"}),
		checkoutAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pos_checkout_total_amount",
			Help:    "Grand total of checked out carts.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}
	reg.MustRegister(
		m.cartsCreated,
		m.capacityRejections,
		m.cartsCleared,
		m.itemsAdded,
		m.restores,
		m.persistFailures,
		m.checkouts,
		m.checkoutAmount,
	)
	return m
}

func (m *CartMetrics) CartCreated() {
	if m == nil {
		return
	}
	m.cartsCreated.Inc()
}

func (m *CartMetrics) CapacityRejected() {
	if m == nil {
		return
	}
	m.capacityRejections.Inc()
}

// CartCleared counts a reset; reason is "clear", "delete_last", "processed" or "reset".
func (m *CartMetrics) CartCleared(reason string) {
	if m == nil {
		return
	}
	m.cartsCleared.WithLabelValues(reason).Inc()
}

func (m *CartMetrics) ItemAdded() {
	if m == nil {
		return
	}
	m.itemsAdded.Inc()
}

func (m *CartMetrics) Restored(reason string) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(reason).Inc()
}

func (m *CartMetrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// CheckoutCompleted records a successful checkout and its total.
func (m *CartMetrics) CheckoutCompleted(total decimal.Decimal) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues("success").Inc()
	m.checkoutAmount.Observe(total.InexactFloat64())
}

func (m *CartMetrics) CheckoutFailed() {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues("failure").Inc()
}
