package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	checkouts        prometheus.Counter
	checkoutFailures *prometheus.CounterVec
	checkoutDuration prometheus.Histogram

	transitions     *prometheus.CounterVec
	transitionFails *prometheus.CounterVec
	stockShortages  prometheus.Counter

	couponRejections *prometheus.CounterVec
	notifications    *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics создаёт метрики заказов в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики заказов в переданном реестре.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		checkouts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of orders created at checkout",
		}),
		checkoutFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failures_total",
			Help: "Total number of rejected checkouts by error code",
		}, []string{"code"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout including payment preference creation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"from", "to"}),
		transitionFails: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transition_failures_total",
			Help: "Total number of failed order status transitions by error code",
		}, []string{"to", "code"}),
		stockShortages: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_shortages_total",
			Help: "Total number of paid orders cancelled due to insufficient stock",
		}),
		couponRejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_coupon_rejections_total",
			Help: "Total number of rejected coupon applications by reason",
		}, []string{"reason"}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_notifications_total",
			Help: "Total number of processed payment notifications by outcome",
		}, []string{"outcome"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of events enqueued to outbox",
		}),
	}
}

// RecordCheckout фиксирует успешный checkout и его длительность.
func (m *OrderMetrics) RecordCheckout(duration time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordCheckoutFailure фиксирует отклонённый checkout.
func (m *OrderMetrics) RecordCheckoutFailure(code string) {
	if m == nil {
		return
	}
	m.checkoutFailures.WithLabelValues(code).Inc()
}

// RecordTransition фиксирует применённый переход статуса.
func (m *OrderMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordTransitionFailure фиксирует неудачный переход.
func (m *OrderMetrics) RecordTransitionFailure(to, code string) {
	if m == nil {
		return
	}
	m.transitionFails.WithLabelValues(to, code).Inc()
}

// RecordStockShortage фиксирует отмену оплаченного заказа из-за нехватки остатка.
func (m *OrderMetrics) RecordStockShortage() {
	if m == nil {
		return
	}
	m.stockShortages.Inc()
}

// RecordCouponRejection фиксирует отказ в применении купона.
func (m *OrderMetrics) RecordCouponRejection(reason string) {
	if m == nil {
		return
	}
	m.couponRejections.WithLabelValues(reason).Inc()
}

// RecordNotification фиксирует результат обработки уведомления об оплате.
func (m *OrderMetrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
