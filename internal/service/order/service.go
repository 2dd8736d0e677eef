package order

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 10 * time.Millisecond
	defaultListLimit   = 50
)

// Причины переходов, которые попадают в timeline и события.
const (
	ReasonInsufficientStock    = "insufficient_stock"
	ReasonCustomerCancelled    = "customer_cancelled"
	ReasonPaymentRequestFailed = "payment_request_failed"
	ReasonPaymentNotification  = "payment_notification"
)

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает метрики заказов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetry задаёт число попыток записи при конфликте версий и базовую задержку.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			s.baseDelay = baseDelay
		}
	}
}

// Detail — заказ вместе с его историей.
type Detail struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// Service — единственная точка записи статуса заказа.
type Service struct {
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository

	logger      *log.Entry
	metrics     *metrics.OrderMetrics
	now         func() time.Time
	maxAttempts int
	baseDelay   time.Duration
}

// NewService создаёт сервис заказов.
func NewService(
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	opts ...Option,
) *Service {
	s := &Service{
		orders:      orders,
		outbox:      outbox,
		timeline:    timeline,
		logger:      log.New().WithField("component", "order-service"),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create сохраняет новый заказ вместе с использованием купона одной записью.
func (s *Service) Create(ctx context.Context, order domain.Order, use *domain.CouponUse) (domain.Order, error) {
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	order.UpdatedAt = order.CreatedAt
	order.Version = 0
	order.StockReserved = false

	if err := s.orders.Create(ctx, order, use); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("create order failed")
		return domain.Order{}, err
	}

	payload := map[string]interface{}{
		"status":      order.Status,
		"total":       order.Total.StringFixed(2),
		"shipping":    order.ShippingFee.StringFixed(2),
		"customer_id": order.CustomerID,
		"ts":          order.CreatedAt.Format(time.RFC3339Nano),
	}
	if order.CouponCode != "" {
		payload["coupon_code"] = order.CouponCode
	}
	s.emitEvent(ctx, &order, domain.EventOrderCreated, payload)

	return order, nil
}

// Get возвращает заказ без проверки владельца (для внутренних потребителей).
func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return s.orders.Get(ctx, orderID)
}

// GetForCustomer возвращает заказ владельца с историей.
// Чужой заказ неотличим от несуществующего.
func (s *Service) GetForCustomer(ctx context.Context, orderID, customerID string) (Detail, error) {
	order, err := s.owned(ctx, orderID, customerID)
	if err != nil {
		return Detail{}, err
	}

	events := []domain.TimelineEvent{}
	if s.timeline != nil {
		events, err = s.timeline.List(ctx, order.ID)
		if err != nil {
			return Detail{}, err
		}
	}
	return Detail{Order: order, Timeline: events}, nil
}

// ListForCustomer возвращает заказы клиента, новые первыми.
func (s *Service) ListForCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if customerID == "" {
		return nil, domain.ErrOrderNotFound
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.orders.ListByCustomer(ctx, customerID, limit)
}

// Cancel отменяет заказ по запросу владельца.
func (s *Service) Cancel(ctx context.Context, orderID, customerID, reason string) (domain.Order, error) {
	if _, err := s.owned(ctx, orderID, customerID); err != nil {
		return domain.Order{}, err
	}
	if reason == "" {
		reason = ReasonCustomerCancelled
	}
	return s.Transition(ctx, orderID, domain.OrderStatusCancelled, reason)
}

func (s *Service) owned(ctx context.Context, orderID, customerID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.OwnedBy(customerID) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}
