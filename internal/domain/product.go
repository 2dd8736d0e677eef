package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product — товар каталога.
type Product struct {
	ID          string
	Name        string
	Description string
	// Price — текущая цена продажи.
	Price decimal.Decimal
	// OriginalPrice — цена "до скидки"; нулевое значение означает, что она не задана.
	OriginalPrice decimal.Decimal
	// Stock меняется только через Reserve/Release.
	Stock     int
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDiscount сообщает, показывать ли скидку: только если исходная цена выше текущей.
func (p Product) HasDiscount() bool {
	return !p.OriginalPrice.IsZero() && p.OriginalPrice.GreaterThan(p.Price)
}

// DiscountPercent возвращает округлённый процент скидки или 0.
func (p Product) DiscountPercent() int64 {
	if !p.HasDiscount() {
		return 0
	}
	return p.OriginalPrice.Sub(p.Price).
		Div(p.OriginalPrice).
		Mul(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// CanReserve проверяет условие резерва без изменения остатка.
func (p Product) CanReserve(qty int) bool {
	return qty > 0 && p.Available && p.Stock >= qty
}

// Reserve уменьшает остаток; не допускает отрицательного остатка.
func (p *Product) Reserve(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if !p.CanReserve(qty) {
		return ErrStockUnavailable
	}
	p.Stock -= qty
	return nil
}

// Release безусловно возвращает qty единиц на склад.
func (p *Product) Release(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	p.Stock += qty
	return nil
}

// Validate проверяет базовые инварианты товара.
func (p *Product) Validate() []error {
	var errs []error
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if !p.Price.IsPositive() {
		errs = append(errs, ErrUnitPriceInvalid)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrQuantityInvalid)
	}
	return errs
}

// ProductFilter описывает выборку каталога.
type ProductFilter struct {
	// Query ищется без учёта регистра в названии или описании.
	Query string
	// OnlyAvailable оставляет только товары с флагом Available.
	OnlyAvailable bool
	// InStockOnly оставляет только товары с ненулевым остатком.
	InStockOnly bool
	// Limit <= 0 означает без ограничения.
	Limit int
}

// Matches применяет фильтр к товару (используется in-memory хранилищем).
func (f ProductFilter) Matches(p Product) bool {
	if f.OnlyAvailable && !p.Available {
		return false
	}
	if f.InStockOnly && p.Stock <= 0 {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Description), q)
}
