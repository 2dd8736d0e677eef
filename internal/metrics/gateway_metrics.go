package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения gauge состояния circuit breaker.
const (
	BreakerClosed   = 0
	BreakerOpen     = 1
	BreakerHalfOpen = 2
)

// GatewayMetrics — метрики вызовов внешнего платёжного провайдера.
type GatewayMetrics struct {
	calls        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
}

// NewGatewayMetrics создаёт метрики платёжного шлюза; при nil используется DefaultRegisterer.
func NewGatewayMetrics(registerer prometheus.Registerer) *GatewayMetrics {
	return &GatewayMetrics{
		calls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_gateway_calls_total",
			Help: "Total number of payment gateway calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_payment_gateway_call_duration_seconds",
			Help:    "Payment gateway call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		breakerState: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "storefront_circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"name"}),
	}
}

// ObserveCall записывает результат вызова провайдера.
func (m *GatewayMetrics) ObserveCall(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetBreakerState выставляет gauge состояния breaker.
func (m *GatewayMetrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}
