package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType — способ расчёта скидки купона.
type DiscountType string

const (
	// DiscountPercentage — процент от подытога корзины.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed — фиксированная сумма, не больше подытога.
	DiscountFixed DiscountType = "fixed"
)

// Valid проверяет, что тип скидки поддерживается.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

const defaultPerCustomerLimit = 1

var hundred = decimal.NewFromInt(100)

// Coupon — купон на скидку. Код уникален без учёта регистра.
type Coupon struct {
	ID     string
	Code   string
	Type   DiscountType
	Value  decimal.Decimal
	Active bool
	// StartsAt и EndsAt: нулевое значение означает "не задано".
	StartsAt time.Time
	EndsAt   time.Time
	// MaxUses — общий лимит использований; 0 — без лимита.
	MaxUses int
	// PerCustomerLimit — лимит на покупателя; 0 трактуется как 1.
	PerCustomerLimit int
	CreatedAt        time.Time
}

// CouponUse связывает купон ровно с одним заказом.
type CouponUse struct {
	ID          string
	CouponID    string
	OrderID     string
	CustomerKey string
	UsedAt      time.Time
}

// NormalizeCouponCode приводит код к каноничному виду для поиска.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CustomerLimit возвращает эффективный лимит на покупателя.
func (c Coupon) CustomerLimit() int {
	if c.PerCustomerLimit <= 0 {
		return defaultPerCustomerLimit
	}
	return c.PerCustomerLimit
}

// CouponUsage — счётчики использований, нужные для проверки купона.
type CouponUsage struct {
	Total int
	// ByCustomer учитывается только при HasCustomer.
	ByCustomer  int
	HasCustomer bool
}

// Check проверяет применимость купона. Порядок проверок фиксирован,
// возвращается первая нарушенная.
func (c Coupon) Check(now time.Time, usage CouponUsage) error {
	if !c.Active {
		return ErrCouponNotFound
	}
	if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
		return ErrCouponNotYetValid
	}
	if !c.EndsAt.IsZero() && now.After(c.EndsAt) {
		return ErrCouponExpired
	}
	if c.MaxUses > 0 && usage.Total >= c.MaxUses {
		return ErrCouponGlobalLimit
	}
	if usage.HasCustomer && usage.ByCustomer >= c.CustomerLimit() {
		return ErrCouponPerUserLimit
	}
	return nil
}

// Discount считает скидку для подытога с округлением до копеек.
// Скидка никогда не превышает подытог.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || !c.Value.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		discount = subtotal.Mul(c.Value).Div(hundred)
	case DiscountFixed:
		discount = decimal.Min(c.Value, subtotal)
	default:
		return decimal.Zero
	}

	return decimal.Min(discount.Round(2), subtotal)
}

// CustomerKey строит ключ покупателя для лимита купона: идентификатор
// аккаунта, а для гостевого заказа — email доставки.
func CustomerKey(customerID, email string) string {
	if id := strings.TrimSpace(customerID); id != "" {
		return "customer:" + id
	}
	if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
		return "email:" + e
	}
	return ""
}
