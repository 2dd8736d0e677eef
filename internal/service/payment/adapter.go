package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
)

const (
	shippingItemID    = "frete"
	shippingItemTitle = "Frete"
	discountItemID    = "desconto"
	discountItemTitle = "Desconto"
	defaultCurrency   = "BRL"
)

// Outcome — результат обработки уведомления провайдера.
type Outcome string

const (
	OutcomeIgnored        Outcome = "ignored"
	OutcomeApplied        Outcome = "applied"
	OutcomeNoop           Outcome = "noop"
	OutcomeRejected       Outcome = "transition_rejected"
	OutcomeUnknownStatus  Outcome = "unknown_status"
	OutcomeOrderNotFound  Outcome = "order_not_found"
	OutcomeStockShortage  Outcome = "stock_shortage"
	OutcomeFetchFailed    Outcome = "fetch_failed"
	OutcomeMalformed      Outcome = "malformed"
	OutcomeInternalFailed Outcome = "failed"
)

// Orders — операции над заказами, нужные адаптеру.
type Orders interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Transition(ctx context.Context, orderID string, to domain.OrderStatus, reason string, mutators ...order.Mutator) (domain.Order, error)
	SetPaymentReference(ctx context.Context, orderID, reference string) (domain.Order, error)
}

// Option настраивает Adapter.
type Option func(*Adapter)

// WithLogger задаёт логгер адаптера.
func WithLogger(logger *log.Entry) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics включает метрики уведомлений.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// WithCurrency задаёт валюту позиций платёжной формы.
func WithCurrency(currency string) Option {
	return func(a *Adapter) {
		if currency = strings.TrimSpace(currency); currency != "" {
			a.currency = strings.ToUpper(currency)
		}
	}
}

// Adapter связывает заказы с платёжным провайдером.
type Adapter struct {
	orders   Orders
	gateway  domain.PaymentGateway
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
	currency string
}

// NewAdapter создаёт платёжный адаптер.
func NewAdapter(orders Orders, gateway domain.PaymentGateway, opts ...Option) *Adapter {
	a := &Adapter{
		orders:   orders,
		gateway:  gateway,
		logger:   log.New().WithField("component", "payment-adapter"),
		currency: defaultCurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreatePaymentRequest создаёт платёжную форму для заказа и сохраняет её идентификатор.
// При отказе провайдера заказ отменяется, а наружу уходит ErrPaymentGateway.
func (a *Adapter) CreatePaymentRequest(ctx context.Context, o domain.Order) (domain.Preference, error) {
	req := a.preferenceRequest(o)

	pref, err := a.gateway.CreatePreference(ctx, req)
	if err != nil {
		a.logger.WithError(err).WithField("order_id", o.ID).Error("create payment preference failed")
		a.abandon(ctx, o.ID)
		return domain.Preference{}, domain.ErrPaymentGateway
	}

	if _, err := a.orders.SetPaymentReference(ctx, o.ID, pref.ID); err != nil {
		a.logger.WithError(err).WithFields(log.Fields{
			"order_id":      o.ID,
			"preference_id": pref.ID,
		}).Error("save payment reference failed")
		a.abandon(ctx, o.ID)
		return domain.Preference{}, fmt.Errorf("save payment reference: %w", err)
	}

	a.logger.WithFields(log.Fields{
		"order_id":      o.ID,
		"preference_id": pref.ID,
	}).Info("payment preference created")
	return pref, nil
}

// abandon отменяет заказ, для которого не удалось подготовить оплату:
// pending без платёжной формы держал бы использование купона.
func (a *Adapter) abandon(ctx context.Context, orderID string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := a.orders.Transition(ctx, orderID, domain.OrderStatusCancelled, order.ReasonPaymentRequestFailed); err != nil {
		a.logger.WithError(err).WithField("order_id", orderID).Error("cancel order after payment setup failure failed")
	}
}

func (a *Adapter) preferenceRequest(o domain.Order) domain.PreferenceRequest {
	items := make([]domain.PreferenceItem, 0, len(o.Lines)+2)
	for _, line := range o.Lines {
		title := line.ProductName
		if title == "" {
			title = line.ProductID
		}
		items = append(items, domain.PreferenceItem{
			ID:         line.ProductID,
			Title:      title,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			CurrencyID: a.currency,
		})
	}
	if o.ShippingFee.IsPositive() {
		items = append(items, domain.PreferenceItem{
			ID:         shippingItemID,
			Title:      shippingItemTitle,
			Quantity:   1,
			UnitPrice:  o.ShippingFee,
			CurrencyID: a.currency,
		})
	}
	if o.Discount.IsPositive() {
		items = append(items, domain.PreferenceItem{
			ID:         discountItemID,
			Title:      discountItemTitle,
			Quantity:   1,
			UnitPrice:  o.Discount.Neg(),
			CurrencyID: a.currency,
		})
	}

	return domain.PreferenceRequest{
		ExternalReference: o.ID,
		Items:             items,
		PayerName:         o.Delivery.Name,
		PayerEmail:        o.Delivery.Email,
	}
}

// HandleNotification применяет уведомление провайдера к заказу.
// Ошибку получает только вызывающий с некорректным уведомлением или при сбое хранилища;
// остальные исходы подтверждаются и попадают в лог и метрики.
func (a *Adapter) HandleNotification(ctx context.Context, n domain.Notification) (outcome Outcome, err error) {
	defer func() {
		a.metrics.RecordNotification(string(outcome))
	}()

	if !strings.EqualFold(strings.TrimSpace(n.Type), domain.NotificationTypePayment) {
		return OutcomeIgnored, nil
	}
	paymentID := strings.TrimSpace(n.PaymentID)
	if paymentID == "" {
		return OutcomeMalformed, domain.ErrMalformedNotification
	}

	logger := a.logger.WithField("payment_id", paymentID)

	view, err := a.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		logger.WithError(err).Warn("fetch payment failed")
		return OutcomeFetchFailed, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	if view.ID == "" {
		view.ID = paymentID
	}
	logger = logger.WithFields(log.Fields{
		"order_id":       view.ExternalReference,
		"payment_status": view.Status,
		"status_detail":  view.StatusDetail,
	})

	target, ok := view.Status.TargetOrderStatus()
	if !ok {
		logger.Warn("unknown payment status, ignoring")
		return OutcomeUnknownStatus, nil
	}
	if view.ExternalReference == "" {
		logger.Warn("payment without external reference")
		return OutcomeOrderNotFound, nil
	}

	current, err := a.orders.Get(ctx, view.ExternalReference)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			logger.Warn("payment references unknown order")
			return OutcomeOrderNotFound, nil
		}
		return OutcomeInternalFailed, err
	}
	a.checkAmount(logger, current, view.Amount)

	record := order.WithPayment(view.ID, view.Status)
	if current.Status == target {
		if _, err := a.orders.Transition(ctx, current.ID, target, order.ReasonPaymentNotification, record); err != nil {
			return OutcomeInternalFailed, err
		}
		logger.Debug("payment notification does not change order status")
		return OutcomeNoop, nil
	}

	// Одобренный платёж по ожидающему заказу проходит через processing.
	if target == domain.OrderStatusPaid && current.Status == domain.OrderStatusPending {
		if _, err := a.orders.Transition(ctx, current.ID, domain.OrderStatusProcessing, order.ReasonPaymentNotification, record); err != nil {
			return a.transitionOutcome(logger, err)
		}
	}

	if _, err := a.orders.Transition(ctx, current.ID, target, order.ReasonPaymentNotification, record); err != nil {
		return a.transitionOutcome(logger, err)
	}

	logger.WithField("order_status", target).Info("payment notification applied")
	return OutcomeApplied, nil
}

func (a *Adapter) transitionOutcome(logger *log.Entry, err error) (Outcome, error) {
	switch {
	case errors.Is(err, domain.ErrTransitionNotAllowed):
		logger.WithError(err).Warn("payment notification rejected by order state machine")
		return OutcomeRejected, nil
	case errors.Is(err, domain.ErrStockUnavailable):
		logger.Warn("order cancelled: insufficient stock at payment approval")
		return OutcomeStockShortage, nil
	default:
		logger.WithError(err).Error("apply payment notification failed")
		return OutcomeInternalFailed, err
	}
}

func (a *Adapter) checkAmount(logger *log.Entry, o domain.Order, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	if due := o.AmountDue(); !amount.Round(2).Equal(due.Round(2)) {
		logger.WithFields(log.Fields{
			"amount_paid": amount.StringFixed(2),
			"amount_due":  due.StringFixed(2),
		}).Warn("payment amount differs from order amount due")
	}
}
