package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestOrderMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordCheckout(15 * time.Millisecond)
	m.RecordCheckoutFailure("coupon_expired")
	m.RecordTransition("pending", "processing")
	m.RecordTransition("pending", "processing")
	m.RecordStockShortage()
	m.RecordOutboxEvent()
	m.RecordTimelineEvent()

	if got := counterValue(t, m.checkouts); got != 1 {
		t.Fatalf("expected checkouts=1, got %f", got)
	}
	if got := counterValue(t, m.transitions.WithLabelValues("pending", "processing")); got != 2 {
		t.Fatalf("expected transitions=2, got %f", got)
	}
	if got := counterValue(t, m.checkoutFailures.WithLabelValues("coupon_expired")); got != 1 {
		t.Fatalf("expected checkout failures=1, got %f", got)
	}
	if got := counterValue(t, m.stockShortages); got != 1 {
		t.Fatalf("expected stock shortages=1, got %f", got)
	}
}

func TestOrderMetrics_ReRegisterReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordStockShortage()
	if got := counterValue(t, second.stockShortages); got != 1 {
		t.Fatalf("expected shared collector, got %f", got)
	}
}

func TestOrderMetrics_NilSafe(_ *testing.T) {
	var m *OrderMetrics
	m.RecordCheckout(time.Second)
	m.RecordTransition("a", "b")
	m.RecordNotification("ignored")
}

func TestGatewayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)

	m.ObserveCall("create_preference", nil, 10*time.Millisecond)
	m.ObserveCall("create_preference", errors.New("boom"), 10*time.Millisecond)
	m.SetBreakerState("mercadopago", BreakerOpen)

	if got := counterValue(t, m.calls.WithLabelValues("create_preference", "error")); got != 1 {
		t.Fatalf("expected 1 error call, got %f", got)
	}

	gauge := &dto.Metric{}
	if err := m.breakerState.WithLabelValues("mercadopago").Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != BreakerOpen {
		t.Fatalf("expected breaker state %d, got %f", BreakerOpen, gauge.Gauge.GetValue())
	}
}

func TestHTTPMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("GET", "/api/products", 200, time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	if got := counterValue(t, m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched=1, got %f", got)
	}
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.RecordPublish(OutboxRetry)
	m.RecordPublish(OutboxRetry)
	m.RecordPublish(OutboxDeadLettered)
	m.SetBacklog(3, 90*time.Second)

	if got := counterValue(t, m.publishes.WithLabelValues(OutboxRetry)); got != 2 {
		t.Fatalf("expected retry=2, got %f", got)
	}

	gauge := &dto.Metric{}
	if err := m.oldestAge.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 90 {
		t.Fatalf("expected oldest age 90s, got %f", gauge.Gauge.GetValue())
	}

	m.SetBacklog(0, time.Hour)
	if err := m.oldestAge.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 0 {
		t.Fatalf("expected empty backlog to reset age, got %f", gauge.Gauge.GetValue())
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.RecordPublish(OutboxSent)
	nilMetrics.SetBacklog(1, time.Second)
}
