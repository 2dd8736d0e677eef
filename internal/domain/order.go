package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	ID        string
	ProductID string
	// ProductName — снимок названия на момент заказа (для платёжной формы).
	ProductName string
	Quantity    int
	// UnitPrice — снимок цены на момент заказа, не зависит от текущей цены товара.
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// Subtotal возвращает quantity * unit_price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Delivery — данные доставки заказа.
type Delivery struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// Validate проверяет обязательные поля доставки.
func (d Delivery) Validate() []error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, ErrDeliveryNameRequired)
	}
	if email := strings.TrimSpace(d.Email); email == "" || !strings.Contains(email, "@") {
		errs = append(errs, ErrDeliveryEmailInvalid)
	}
	if strings.TrimSpace(d.Phone) == "" {
		errs = append(errs, ErrDeliveryPhoneRequired)
	}
	if strings.TrimSpace(d.Street) == "" ||
		strings.TrimSpace(d.City) == "" ||
		strings.TrimSpace(d.State) == "" ||
		strings.TrimSpace(d.PostalCode) == "" {
		errs = append(errs, ErrDeliveryAddressRequired)
	}
	return errs
}

// Order агрегирует состояние заказа, его позиции и данные оплаты.
type Order struct {
	ID string
	// CustomerID пустой для гостевого заказа.
	CustomerID string
	Status     OrderStatus
	Lines      []OrderLine
	Delivery   Delivery
	// DeliveryPayload хранит секцию доставки в исходном виде для аудита.
	DeliveryPayload json.RawMessage
	CouponID        string
	CouponCode      string
	Discount        decimal.Decimal
	ShippingFee     decimal.Decimal
	Total           decimal.Decimal
	// PaymentReference — идентификатор preference у платёжного провайдера.
	PaymentReference string
	// PaymentID и PaymentStatus — последний обработанный платёж.
	PaymentID     string
	PaymentStatus PaymentStatus
	// StockReserved защищает от повторного резерва при дублях уведомлений.
	StockReserved bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Subtotal суммирует подытоги позиций.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range o.Lines {
		sum = sum.Add(line.Subtotal())
	}
	return sum
}

// RecalculateTotal пересчитывает итог из позиций: max(subtotal - discount, 0).
func (o *Order) RecalculateTotal() {
	total := o.Subtotal().Sub(o.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total.Round(2)
}

// AmountDue — сумма к оплате с учётом доставки.
func (o *Order) AmountDue() decimal.Decimal {
	return o.Total.Add(o.ShippingFee)
}

// OwnedBy сообщает, принадлежит ли заказ покупателю. Гостевые заказы
// не принадлежат никому.
func (o *Order) OwnedBy(customerID string) bool {
	return o.CustomerID != "" && o.CustomerID == customerID
}

// CustomerKey — ключ покупателя для лимитов купона.
func (o *Order) CustomerKey() string {
	return CustomerKey(o.CustomerID, o.Delivery.Email)
}

// TransitionTo переводит заказ в статус to по таблице переходов.
// При недопустимом переходе заказ не меняется и возвращается ErrTransitionNotAllowed.
// Возвращает побочные эффекты, которые хранилище обязано применить атомарно.
func (o *Order) TransitionTo(to OrderStatus) (TransitionEffects, error) {
	if !CanTransition(o.Status, to) {
		return TransitionEffects{}, ErrTransitionNotAllowed
	}

	effects := EffectsFor(*o, to)
	o.Status = to
	if effects.ReserveStock {
		o.StockReserved = true
	}
	if effects.ReleaseStock {
		o.StockReserved = false
	}
	return effects, nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Lines) == 0 {
		errs = append(errs, ErrCartEmpty)
	}
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if !line.UnitPrice.IsPositive() {
			errs = append(errs, ErrUnitPriceInvalid)
		}
	}

	subtotal := o.Subtotal()
	if o.Discount.IsNegative() || o.Discount.GreaterThan(subtotal) {
		errs = append(errs, ErrDiscountInvalid)
	}

	expected := subtotal.Sub(o.Discount)
	if expected.IsNegative() {
		expected = decimal.Zero
	}
	if !expected.Round(2).Equal(o.Total) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
