package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdempotencyMetrics — метрики очистки просроченных Idempotency-Key.
type IdempotencyMetrics struct {
	sweeps      *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewIdempotencyMetrics создаёт метрики в переданном реестре; при nil используется DefaultRegisterer.
func NewIdempotencyMetrics(registerer prometheus.Registerer) *IdempotencyMetrics {
	return &IdempotencyMetrics{
		sweeps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs by result",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_idempotency_cleanup_last_deleted",
			Help: "Number of records deleted during the last cleanup run",
		}),
	}
}

// RecordSweep фиксирует завершённый проход очистки.
func (m *IdempotencyMetrics) RecordSweep(deleted int) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues("ok").Inc()
	m.deleted.Add(float64(deleted))
	m.lastDeleted.Set(float64(deleted))
}

// RecordSweepError фиксирует проход, прерванный ошибкой хранилища.
func (m *IdempotencyMetrics) RecordSweepError() {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues("error").Inc()
}
