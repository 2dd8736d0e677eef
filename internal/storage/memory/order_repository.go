package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository поверх общего Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Create сохраняет заказ и использование купона, если ID ещё не занят
// и лимиты купона не исчерпаны.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order, use *domain.CouponUse) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.orders[order.ID]; exists {
		return domain.ErrDuplicateID
	}

	if use != nil {
		if _, used := r.store.couponUses[order.ID]; used {
			return domain.ErrDuplicateID
		}
		coupon, ok := r.couponByIDLocked(use.CouponID)
		if !ok {
			return domain.ErrCouponNotFound
		}
		usage := r.store.couponUsageLocked(coupon.ID, use.CustomerKey)
		if coupon.MaxUses > 0 && usage.Total >= coupon.MaxUses {
			return domain.ErrCouponGlobalLimit
		}
		if usage.HasCustomer && usage.ByCustomer >= coupon.CustomerLimit() {
			return domain.ErrCouponPerUserLimit
		}
		stored := *use
		stored.OrderID = order.ID
		r.store.couponUses[order.ID] = stored
	}

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.store.orders[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if order.CustomerID == "" || order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(ctx context.Context, order domain.Order) error {
	return r.Transition(ctx, order, domain.TransitionEffects{})
}

// Transition применяет эффекты перехода и сохраняет заказ под одним мьютексом.
func (r *orderRepositoryInMemory) Transition(_ context.Context, order domain.Order, effects domain.TransitionEffects) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	if effects.ReserveStock {
		if err := r.store.reserveLinesLocked(current.Lines); err != nil {
			return err
		}
	}
	if effects.ReleaseStock {
		if err := r.store.releaseLinesLocked(current.Lines); err != nil {
			return err
		}
	}
	if effects.DeleteCouponUse {
		delete(r.store.couponUses, order.ID)
	}

	// Позиции неизменяемы после создания заказа.
	order.Lines = current.Lines
	order.Version++
	r.store.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *orderRepositoryInMemory) couponByIDLocked(id string) (domain.Coupon, bool) {
	for _, coupon := range r.store.coupons {
		if coupon.ID == id {
			return coupon, true
		}
	}
	return domain.Coupon{}, false
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
