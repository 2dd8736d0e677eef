package order

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type ServiceSuite struct {
	suite.Suite

	ctx      context.Context
	store    *memory.Store
	products domain.ProductRepository
	coupons  domain.CouponRepository
	orders   domain.OrderRepository
	outbox   *memory.OutboxRepository
	timeline domain.TimelineRepository
	svc      *Service
	clock    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.products = memory.NewProductRepository(s.store)
	s.coupons = memory.NewCouponRepository(s.store)
	s.orders = memory.NewOrderRepository(s.store)
	s.outbox = memory.NewOutboxRepository()
	s.timeline = memory.NewTimelineRepository()
	s.clock = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(s.T(), s.products.Create(s.ctx, domain.Product{
		ID: "p-1", Name: "Caneca", Price: decimal.NewFromInt(50), Stock: 5, Available: true,
	}))
	require.NoError(s.T(), s.products.Create(s.ctx, domain.Product{
		ID: "p-2", Name: "Camiseta", Price: decimal.NewFromInt(80), Stock: 1, Available: true,
	}))
	require.NoError(s.T(), s.coupons.Create(s.ctx, domain.Coupon{
		ID: "c-1", Code: "PROMO10", Type: domain.DiscountPercentage, Value: decimal.NewFromInt(10), Active: true,
	}))

	s.svc = s.newService(s.orders)
}

func (s *ServiceSuite) newService(orders domain.OrderRepository) *Service {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	return NewService(orders, s.outbox, s.timeline,
		WithLogger(logger.WithField("component", "order-test")),
		WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
		WithClock(s.tick),
		WithRetry(3, 0),
	)
}

func (s *ServiceSuite) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *ServiceSuite) createOrder(id, customerID, productID string, qty int, withCoupon bool) domain.Order {
	order := domain.Order{
		ID:         id,
		CustomerID: customerID,
		Lines: []domain.OrderLine{{
			ID: id + "-l1", ProductID: productID, ProductName: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(50),
		}},
		Delivery: domain.Delivery{Email: "ana@example.com"},
	}
	var use *domain.CouponUse
	if withCoupon {
		order.CouponID = "c-1"
		order.CouponCode = "PROMO10"
		order.Discount = order.Subtotal().Mul(decimal.NewFromInt(10)).Div(decimal.NewFromInt(100)).Round(2)
		use = &domain.CouponUse{ID: id + "-use", CouponID: "c-1", CustomerKey: order.CustomerKey(), UsedAt: s.clock}
	}
	order.RecalculateTotal()

	created, err := s.svc.Create(s.ctx, order, use)
	require.NoError(s.T(), err)
	return created
}

func (s *ServiceSuite) stock(id string) int {
	p, err := s.products.Get(s.ctx, id)
	require.NoError(s.T(), err)
	return p.Stock
}

func (s *ServiceSuite) eventTypes(orderID string) []string {
	msgs := s.outbox.Messages(orderID)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.EventType)
	}
	return out
}

func (s *ServiceSuite) TestCreate_PersistsPendingAndEmitsEvent() {
	order := s.createOrder("o-1", "cust-1", "p-1", 3, true)

	s.Equal(domain.OrderStatusPending, order.Status)
	s.True(order.Total.Equal(decimal.NewFromInt(135)), "total %s", order.Total)
	s.Equal([]string{domain.EventOrderCreated}, s.eventTypes("o-1"))

	msgs := s.outbox.Messages("o-1")
	var payload map[string]interface{}
	require.NoError(s.T(), json.Unmarshal(msgs[0].Payload, &payload))
	s.Equal("o-1", payload["order_id"])
	s.Equal("PROMO10", payload["coupon_code"])

	_, err := s.coupons.UseByOrder(s.ctx, "o-1")
	s.NoError(err)
}

func (s *ServiceSuite) TestCreate_RejectsInconsistentTotals() {
	order := domain.Order{
		ID: "o-bad",
		Lines: []domain.OrderLine{{
			ID: "l", ProductID: "p-1", Quantity: 1, UnitPrice: decimal.NewFromInt(50),
		}},
		Total: decimal.NewFromInt(10),
	}
	_, err := s.svc.Create(s.ctx, order, nil)
	s.ErrorIs(err, domain.ErrTotalMismatch)
	s.Equal(domain.KindValidation, domain.KindOf(err))

	_, err = s.orders.Get(s.ctx, "o-bad")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *ServiceSuite) TestTransition_ApprovalReservesStockOnce() {
	s.createOrder("o-1", "cust-1", "p-1", 2, false)

	_, err := s.svc.Transition(s.ctx, "o-1", domain.OrderStatusProcessing, ReasonPaymentNotification)
	require.NoError(s.T(), err)
	paid, err := s.svc.Transition(s.ctx, "o-1", domain.OrderStatusPaid, ReasonPaymentNotification)
	require.NoError(s.T(), err)

	s.Equal(domain.OrderStatusPaid, paid.Status)
	s.True(paid.StockReserved)
	s.Equal(3, s.stock("p-1"))

	again, err := s.svc.Transition(s.ctx, "o-1", domain.OrderStatusPaid, ReasonPaymentNotification)
	require.NoError(s.T(), err)
	s.Equal(paid.Version, again.Version)
	s.Equal(3, s.stock("p-1"))

	s.Equal([]string{
		domain.EventOrderCreated,
		domain.EventOrderStatusChanged,
		domain.EventOrderStatusChanged,
	}, s.eventTypes("o-1"))
}

func (s *ServiceSuite) TestTransition_DisallowedLeavesStatus() {
	s.createOrder("o-1", "cust-1", "p-1", 1, false)

	order, err := s.svc.Transition(s.ctx, "o-1", domain.OrderStatusShipped, "")
	s.ErrorIs(err, domain.ErrTransitionNotAllowed)
	s.Equal(domain.OrderStatusPending, order.Status)

	stored, err := s.orders.Get(s.ctx, "o-1")
	require.NoError(s.T(), err)
	s.Equal(domain.OrderStatusPending, stored.Status)
	s.Equal(int64(0), stored.Version)
}

func (s *ServiceSuite) TestTransition_ShortageCancelsWithoutPartialDecrement() {
	order := domain.Order{
		ID:         "o-short",
		CustomerID: "cust-1",
		Lines: []domain.OrderLine{
			{ID: "l1", ProductID: "p-1", Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
			{ID: "l2", ProductID: "p-2", Quantity: 2, UnitPrice: decimal.NewFromInt(80)},
		},
	}
	order.RecalculateTotal()
	_, err := s.svc.Create(s.ctx, order, nil)
	require.NoError(s.T(), err)

	_, err = s.svc.Transition(s.ctx, "o-short", domain.OrderStatusProcessing, "")
	require.NoError(s.T(), err)

	cancelled, err := s.svc.Transition(s.ctx, "o-short", domain.OrderStatusPaid, ReasonPaymentNotification,
		WithPayment("pay-1", domain.PaymentStatusApproved))
	s.ErrorIs(err, domain.ErrStockUnavailable)
	s.Equal(domain.OrderStatusCancelled, cancelled.Status)
	s.False(cancelled.StockReserved)
	s.Equal("pay-1", cancelled.PaymentID)
	s.Equal(5, s.stock("p-1"))
	s.Equal(1, s.stock("p-2"))

	s.Contains(s.eventTypes("o-short"), domain.EventOrderStockShortage)
	events, err := s.timeline.List(s.ctx, "o-short")
	require.NoError(s.T(), err)
	var reasons []string
	for _, e := range events {
		reasons = append(reasons, e.Reason)
	}
	s.Contains(reasons, ReasonInsufficientStock)
}

func (s *ServiceSuite) TestCancel_PendingRemovesCouponUse() {
	s.createOrder("o-1", "cust-1", "p-1", 2, true)

	cancelled, err := s.svc.Cancel(s.ctx, "o-1", "cust-1", "")
	require.NoError(s.T(), err)
	s.Equal(domain.OrderStatusCancelled, cancelled.Status)
	s.Equal(5, s.stock("p-1"))

	_, err = s.coupons.UseByOrder(s.ctx, "o-1")
	s.ErrorIs(err, domain.ErrCouponUseNotFound)

	detail, err := s.svc.GetForCustomer(s.ctx, "o-1", "cust-1")
	require.NoError(s.T(), err)
	require.Len(s.T(), detail.Timeline, 2)
	s.Equal(domain.EventOrderCancelled, detail.Timeline[1].Type)
	s.Equal(ReasonCustomerCancelled, detail.Timeline[1].Reason)
	s.Equal(domain.OrderStatusCancelled, detail.Timeline[1].Status)
}

func (s *ServiceSuite) TestCancel_ForeignOrderLooksMissing() {
	s.createOrder("o-1", "cust-1", "p-1", 1, false)

	_, err := s.svc.Cancel(s.ctx, "o-1", "cust-2", "")
	s.ErrorIs(err, domain.ErrOrderNotFound)

	_, err = s.svc.GetForCustomer(s.ctx, "o-1", "")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *ServiceSuite) TestRefund_ReleasesStockKeepsCouponUse() {
	s.createOrder("o-1", "cust-1", "p-1", 2, true)
	for _, to := range []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusPaid} {
		_, err := s.svc.Transition(s.ctx, "o-1", to, "")
		require.NoError(s.T(), err)
	}
	s.Equal(3, s.stock("p-1"))

	refunded, err := s.svc.Transition(s.ctx, "o-1", domain.OrderStatusRefunded, "refund")
	require.NoError(s.T(), err)
	s.Equal(domain.OrderStatusRefunded, refunded.Status)
	s.False(refunded.StockReserved)
	s.Equal(5, s.stock("p-1"))

	_, err = s.coupons.UseByOrder(s.ctx, "o-1")
	s.NoError(err)
}

func (s *ServiceSuite) TestTransition_SameStatusRecordsPayment() {
	s.createOrder("o-1", "cust-1", "p-1", 1, false)
	_, err := s.svc.Transition(s.ctx, "o-1", domain.OrderStatusProcessing, "")
	require.NoError(s.T(), err)

	updated, err := s.svc.Transition(s.ctx, "o-1", domain.OrderStatusProcessing, "",
		WithPayment("pay-9", domain.PaymentStatusInProcess))
	require.NoError(s.T(), err)
	s.Equal("pay-9", updated.PaymentID)
	s.Equal(domain.PaymentStatusInProcess, updated.PaymentStatus)
	s.Equal(int64(2), updated.Version)
}

func (s *ServiceSuite) TestSetPaymentReference() {
	s.createOrder("o-1", "cust-1", "p-1", 1, false)

	order, err := s.svc.SetPaymentReference(s.ctx, "o-1", "pref-1")
	require.NoError(s.T(), err)
	s.Equal("pref-1", order.PaymentReference)
	s.Equal(domain.OrderStatusPending, order.Status)
	s.Contains(s.eventTypes("o-1"), domain.EventPaymentRequested)
}

func (s *ServiceSuite) TestListForCustomer_NewestFirst() {
	s.createOrder("o-1", "cust-1", "p-1", 1, false)
	s.createOrder("o-2", "cust-1", "p-1", 1, false)
	s.createOrder("o-3", "cust-2", "p-1", 1, false)

	orders, err := s.svc.ListForCustomer(s.ctx, "cust-1", 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), orders, 2)
	s.Equal("o-2", orders[0].ID)
	s.Equal("o-1", orders[1].ID)

	_, err = s.svc.ListForCustomer(s.ctx, "", 0)
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

// conflictingRepository возвращает конфликт версий на первые conflicts записей.
type conflictingRepository struct {
	domain.OrderRepository
	conflicts int32
	calls     int32
}

func (r *conflictingRepository) Transition(ctx context.Context, order domain.Order, effects domain.TransitionEffects) error {
	if atomic.AddInt32(&r.calls, 1) <= r.conflicts {
		return domain.ErrOrderVersionConflict
	}
	return r.OrderRepository.Transition(ctx, order, effects)
}

func (s *ServiceSuite) TestTransition_RetriesVersionConflict() {
	s.createOrder("o-1", "cust-1", "p-1", 1, false)

	repo := &conflictingRepository{OrderRepository: s.orders, conflicts: 2}
	svc := s.newService(repo)

	order, err := svc.Transition(s.ctx, "o-1", domain.OrderStatusProcessing, "")
	require.NoError(s.T(), err)
	s.Equal(domain.OrderStatusProcessing, order.Status)
	s.Equal(int32(3), atomic.LoadInt32(&repo.calls))
}

func (s *ServiceSuite) TestTransition_GivesUpAfterMaxAttempts() {
	s.createOrder("o-1", "cust-1", "p-1", 1, false)

	repo := &conflictingRepository{OrderRepository: s.orders, conflicts: 10}
	svc := s.newService(repo)

	_, err := svc.Transition(s.ctx, "o-1", domain.OrderStatusProcessing, "")
	s.True(errors.Is(err, domain.ErrOrderVersionConflict))
	s.Equal(int32(3), atomic.LoadInt32(&repo.calls))
}
