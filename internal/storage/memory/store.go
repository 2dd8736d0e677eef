package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store — общее in-memory состояние каталога, купонов и заказов.
// Один мьютекс на всё состояние даёт атомарность переходов заказа
// вместе с изменением остатков и использований купонов.
type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	coupons    map[string]domain.Coupon // ключ — нормализованный код
	couponUses map[string]domain.CouponUse
	orders     map[string]domain.Order
}

// NewStore создаёт пустое in-memory хранилище для локальной разработки и тестов.
func NewStore() *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		coupons:    make(map[string]domain.Coupon),
		couponUses: make(map[string]domain.CouponUse),
		orders:     make(map[string]domain.Order),
	}
}

// reserveLinesLocked резервирует остаток по всем позициям или ничего.
// Вызывающий обязан держать s.mu на запись.
func (s *Store) reserveLinesLocked(lines []domain.OrderLine) error {
	need := make(map[string]int, len(lines))
	for _, line := range lines {
		need[line.ProductID] += line.Quantity
	}

	for id, qty := range need {
		product, ok := s.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		if !product.CanReserve(qty) {
			return domain.ErrStockUnavailable
		}
	}

	for id, qty := range need {
		product := s.products[id]
		if err := product.Reserve(qty); err != nil {
			return err
		}
		s.products[id] = product
	}
	return nil
}

// releaseLinesLocked возвращает остаток по всем позициям.
func (s *Store) releaseLinesLocked(lines []domain.OrderLine) error {
	for _, line := range lines {
		if _, ok := s.products[line.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
	}
	for _, line := range lines {
		product := s.products[line.ProductID]
		if err := product.Release(line.Quantity); err != nil {
			return err
		}
		s.products[line.ProductID] = product
	}
	return nil
}

func (s *Store) couponUsageLocked(couponID, customerKey string) domain.CouponUsage {
	usage := domain.CouponUsage{HasCustomer: customerKey != ""}
	for _, use := range s.couponUses {
		if use.CouponID != couponID {
			continue
		}
		usage.Total++
		if usage.HasCustomer && use.CustomerKey == customerKey {
			usage.ByCustomer++
		}
	}
	return usage
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Lines = append([]domain.OrderLine(nil), src.Lines...)
	dst.DeliveryPayload = append([]byte(nil), src.DeliveryPayload...)
	return dst
}
