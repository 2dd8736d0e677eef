package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Quote — рассчитанная скидка по купону.
type Quote struct {
	Discount decimal.Decimal
	Coupon   domain.Coupon
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics включает учёт отклонённых купонов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine проверяет купоны и считает скидку.
type Engine struct {
	coupons domain.CouponRepository
	now     func() time.Time
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// NewEngine создаёт движок купонов.
func NewEngine(coupons domain.CouponRepository, opts ...Option) *Engine {
	e := &Engine{
		coupons: coupons,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  log.New().WithField("component", "coupon-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateAndPrice проверяет купон и возвращает скидку для subtotal.
// Пустой customerKey отключает проверку лимита на клиента.
func (e *Engine) ValidateAndPrice(ctx context.Context, code string, subtotal decimal.Decimal, customerKey string) (Quote, error) {
	if strings.TrimSpace(code) == "" {
		return Quote{}, e.reject(code, domain.ErrCouponNotFound)
	}

	coupon, err := e.coupons.GetByCode(ctx, code)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return Quote{}, e.reject(code, domain.ErrCouponNotFound)
		}
		return Quote{}, fmt.Errorf("load coupon: %w", err)
	}

	usage, err := e.coupons.Usage(ctx, coupon.ID, customerKey)
	if err != nil {
		return Quote{}, fmt.Errorf("load coupon usage: %w", err)
	}

	if err := coupon.Check(e.now(), usage); err != nil {
		return Quote{}, e.reject(coupon.Code, err)
	}

	return Quote{Discount: coupon.Discount(subtotal), Coupon: coupon}, nil
}

func (e *Engine) reject(code string, err error) error {
	e.metrics.RecordCouponRejection(domain.CodeOf(err))
	e.logger.WithFields(log.Fields{
		"code":   domain.NormalizeCouponCode(code),
		"reason": domain.CodeOf(err),
	}).Debug("coupon rejected")
	return err
}
