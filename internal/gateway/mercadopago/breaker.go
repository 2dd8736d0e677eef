package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// BreakerSettings — параметры circuit breaker вокруг провайдера.
type BreakerSettings struct {
	MaxRequests  uint32        // запросов в half-open
	Interval     time.Duration // окно подсчёта ошибок в closed
	Timeout      time.Duration // сколько ждать перед half-open
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings: размыкание при >=60% ошибок из минимум трёх запросов.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     15 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// ErrBreakerOpen возвращается без обращения к провайдеру, пока breaker разомкнут.
var ErrBreakerOpen = errors.New("payment gateway circuit breaker is open")

// Breaker — gobreaker с метриками состояния.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	name    string
	metrics *metrics.GatewayMetrics
}

// NewBreaker создаёт breaker и выставляет gauge в closed.
func NewBreaker(name string, settings BreakerSettings, m *metrics.GatewayMetrics, logger *log.Entry) *Breaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}
	b := &Breaker{name: name, metrics: m}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			m.SetBreakerState(cbName, stateValue(to))
			logger.WithFields(log.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("circuit breaker state changed")
		},
	})
	m.SetBreakerState(name, metrics.BreakerClosed)
	return b
}

// Execute выполняет fn через breaker. Отказ по состоянию breaker
// возвращается как ErrBreakerOpen.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrBreakerOpen, b.name)
	}
	return result, err
}

// State возвращает текущее состояние строкой: closed, open, half-open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Open сообщает, что breaker разомкнут.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// tripsBreaker отделяет отказ провайдера (сеть, 5xx, 429) от ошибки
// самого запроса: 4xx на неизвестный платёж не говорит о недоступности.
func tripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError ||
			statusErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

func stateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}
