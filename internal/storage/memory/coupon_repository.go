package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type couponRepositoryInMemory struct {
	store *Store
}

// NewCouponRepository возвращает in-memory хранилище купонов поверх общего Store.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepositoryInMemory{store: store}
}

func (r *couponRepositoryInMemory) Create(_ context.Context, coupon domain.Coupon) error {
	code := domain.NormalizeCouponCode(coupon.Code)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.coupons[code]; exists {
		return domain.ErrDuplicateID
	}
	coupon.Code = code
	r.store.coupons[code] = coupon
	return nil
}

func (r *couponRepositoryInMemory) GetByCode(_ context.Context, code string) (domain.Coupon, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	coupon, ok := r.store.coupons[domain.NormalizeCouponCode(code)]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

func (r *couponRepositoryInMemory) Usage(_ context.Context, couponID, customerKey string) (domain.CouponUsage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.store.couponUsageLocked(couponID, customerKey), nil
}

func (r *couponRepositoryInMemory) UseByOrder(_ context.Context, orderID string) (domain.CouponUse, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	use, ok := r.store.couponUses[orderID]
	if !ok {
		return domain.CouponUse{}, domain.ErrCouponUseNotFound
	}
	return use, nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
