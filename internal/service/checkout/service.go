package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
)

// Settings — правила магазина для расчёта доставки.
type Settings struct {
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	Currency              string
}

// DefaultSettings возвращает правила по умолчанию: бесплатная доставка от 100.00, иначе 15.00.
func DefaultSettings() Settings {
	return Settings{
		FreeShippingThreshold: decimal.NewFromInt(100),
		ShippingFee:           decimal.NewFromInt(15),
		Currency:              "BRL",
	}
}

// ShippingFor возвращает стоимость доставки для суммы товаров.
func (s Settings) ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(s.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.ShippingFee
}

// Item — позиция корзины с ценой, которую видел покупатель.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Request — данные оформления заказа.
type Request struct {
	CustomerID string
	Items      []Item
	Delivery   domain.Delivery
	// DeliveryPayload — исходный JSON доставки, сохраняется как есть.
	DeliveryPayload json.RawMessage
	CouponCode      string
}

// Result — итог оформления.
type Result struct {
	OrderID     string
	RedirectURL string
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
	AmountDue   decimal.Decimal
}

// Orders — создание заказа.
type Orders interface {
	Create(ctx context.Context, order domain.Order, use *domain.CouponUse) (domain.Order, error)
}

// Payments — создание платёжной формы.
type Payments interface {
	CreatePaymentRequest(ctx context.Context, order domain.Order) (domain.Preference, error)
}

// Pricer — проверка купона и расчёт скидки.
type Pricer interface {
	ValidateAndPrice(ctx context.Context, code string, subtotal decimal.Decimal, customerKey string) (coupon.Quote, error)
}

// Service оформляет заказ: проверка корзины, цена, заказ, платёжная форма.
type Service struct {
	products domain.ProductRepository
	coupons  Pricer
	orders   Orders
	payments Payments
	settings Settings
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
	now      func() time.Time
}

// NewService создаёт сервис оформления заказа.
func NewService(
	products domain.ProductRepository,
	coupons Pricer,
	orders Orders,
	payments Payments,
	settings Settings,
	logger *log.Entry,
	m *metrics.OrderMetrics,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		payments: payments,
		settings: settings,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Checkout создаёт заказ в статусе pending и платёжную форму для него.
// Остаток проверяется, но не списывается: резерв происходит при подтверждении оплаты.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	result, err := s.checkout(ctx, req)
	if err != nil {
		s.metrics.RecordCheckoutFailure(domain.CodeOf(err))
		return Result{}, err
	}
	s.metrics.RecordCheckout(time.Since(start))
	return result, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	now := s.now()
	items, err := mergeItems(req.Items)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", req.CustomerID).Info("checkout rejected: conflicting cart prices")
		return Result{}, err
	}
	lines, err := s.buildLines(ctx, items, now)
	if err != nil {
		return Result{}, err
	}

	o := domain.Order{
		ID:              uuid.NewString(),
		CustomerID:      strings.TrimSpace(req.CustomerID),
		Status:          domain.OrderStatusPending,
		Lines:           lines,
		Delivery:        req.Delivery,
		DeliveryPayload: req.DeliveryPayload,
		CreatedAt:       now,
	}
	subtotal := o.Subtotal()

	var use *domain.CouponUse
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		quote, err := s.coupons.ValidateAndPrice(ctx, code, subtotal, o.CustomerKey())
		if err != nil {
			return Result{}, err
		}
		o.CouponID = quote.Coupon.ID
		o.CouponCode = quote.Coupon.Code
		o.Discount = quote.Discount
		use = &domain.CouponUse{
			ID:          uuid.NewString(),
			CouponID:    quote.Coupon.ID,
			OrderID:     o.ID,
			CustomerKey: o.CustomerKey(),
			UsedAt:      now,
		}
	}

	o.ShippingFee = s.settings.ShippingFor(subtotal)
	o.RecalculateTotal()

	created, err := s.orders.Create(ctx, o, use)
	if err != nil {
		return Result{}, err
	}

	pref, err := s.payments.CreatePaymentRequest(ctx, created)
	if err != nil {
		return Result{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":   created.ID,
		"total":      created.Total.StringFixed(2),
		"shipping":   created.ShippingFee.StringFixed(2),
		"coupon":     created.CouponCode,
		"line_count": len(created.Lines),
	}).Info("checkout completed")

	return Result{
		OrderID:     created.ID,
		RedirectURL: pref.RedirectURL,
		Subtotal:    subtotal,
		Discount:    created.Discount,
		ShippingFee: created.ShippingFee,
		Total:       created.Total,
		AmountDue:   created.AmountDue(),
	}, nil
}

func validateRequest(req Request) error {
	var errs []error
	if len(req.Items) == 0 {
		errs = append(errs, domain.ErrCartEmpty)
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			errs = append(errs, domain.ErrProductIDRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, domain.ErrQuantityInvalid)
		}
		if !item.UnitPrice.IsPositive() {
			errs = append(errs, domain.ErrUnitPriceInvalid)
		}
	}
	errs = append(errs, req.Delivery.Validate()...)
	return errors.Join(errs...)
}

// mergeItems складывает повторяющиеся товары, сохраняя порядок первого появления.
// Повторы с другой ценой отклоняются: позиция заказа хранит одну цену.
func mergeItems(items []Item) ([]Item, error) {
	index := make(map[string]int, len(items))
	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if i, ok := index[item.ProductID]; ok {
			if !out[i].UnitPrice.Equal(item.UnitPrice) {
				return nil, fmt.Errorf("%w: product %s", domain.ErrCartPriceConflict, item.ProductID)
			}
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) buildLines(ctx context.Context, items []Item, now time.Time) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		product, err := s.products.Get(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if !product.Available {
			return nil, domain.ErrProductNotFound
		}
		if product.Stock < item.Quantity {
			s.logger.WithFields(log.Fields{
				"product_id": product.ID,
				"requested":  item.Quantity,
				"stock":      product.Stock,
			}).Info("checkout rejected: insufficient stock")
			return nil, domain.ErrInsufficientStock
		}
		if !product.Price.Equal(item.UnitPrice) {
			s.logger.WithFields(log.Fields{
				"product_id":    product.ID,
				"client_price":  item.UnitPrice.StringFixed(2),
				"catalog_price": product.Price.StringFixed(2),
			}).Warn("client unit price differs from catalog price")
		}

		lines = append(lines, domain.OrderLine{
			ID:          uuid.NewString(),
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			CreatedAt:   now,
		})
	}
	return lines, nil
}
