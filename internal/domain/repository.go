package domain

import "context"

// ProductRepository описывает хранилище каталога и операции склада.
type ProductRepository interface {
	// Create сохраняет новый товар.
	Create(ctx context.Context, product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// List возвращает товары по фильтру, упорядоченные по названию.
	List(ctx context.Context, filter ProductFilter) ([]Product, error)
	// Reserve уменьшает остаток, только если stock >= qty и товар доступен.
	Reserve(ctx context.Context, id string, qty int) error
	// Release безусловно увеличивает остаток.
	Release(ctx context.Context, id string, qty int) error
}

// CouponRepository описывает хранилище купонов и их использований.
type CouponRepository interface {
	Create(ctx context.Context, coupon Coupon) error
	// GetByCode ищет купон без учёта регистра; ErrCouponNotFound, если его нет.
	GetByCode(ctx context.Context, code string) (Coupon, error)
	// Usage возвращает счётчики использований купона; customerKey может быть пустым.
	Usage(ctx context.Context, couponID, customerKey string) (CouponUsage, error)
	// UseByOrder возвращает использование купона заказом или ErrCouponUseNotFound.
	UseByOrder(ctx context.Context, orderID string) (CouponUse, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет заказ, позиции и (опционально) использование купона.
	// Лимиты купона перепроверяются внутри той же транзакции.
	Create(ctx context.Context, order Order, use *CouponUse) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента от новых к старым.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Save применяет изменения заказа с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// Transition сохраняет заказ вместе с побочными эффектами перехода атомарно.
	// При нехватке остатка ничего не применяется и возвращается ErrStockUnavailable.
	Transition(ctx context.Context, order Order, effects TransitionEffects) error
}
