package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const couponColumns = `id, code, discount_type, value, active, starts_at, ends_at, max_uses, per_customer_limit, created_at`

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

func (r *couponRepository) Create(ctx context.Context, coupon domain.Coupon) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		coupon.ID, domain.NormalizeCouponCode(coupon.Code), string(coupon.Type), coupon.Value, coupon.Active,
		nullTime(coupon.StartsAt), nullTime(coupon.EndsAt), coupon.MaxUses, coupon.PerCustomerLimit, coupon.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	coupon, err := scanCoupon(r.db.QueryRowContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE UPPER(code) = $1
	`, domain.NormalizeCouponCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}
	return coupon, nil
}

func (r *couponRepository) Usage(ctx context.Context, couponID, customerKey string) (domain.CouponUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	usage, err := couponUsage(ctx, r.db, couponID, customerKey)
	if err != nil {
		return domain.CouponUsage{}, err
	}
	return usage, nil
}

func (r *couponRepository) UseByOrder(ctx context.Context, orderID string) (domain.CouponUse, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var use domain.CouponUse
	err := r.db.QueryRowContext(ctx, `
		SELECT id, coupon_id, order_id, customer_key, used_at
		FROM coupon_uses
		WHERE order_id = $1
	`, orderID).Scan(&use.ID, &use.CouponID, &use.OrderID, &use.CustomerKey, &use.UsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CouponUse{}, domain.ErrCouponUseNotFound
		}
		return domain.CouponUse{}, fmt.Errorf("select coupon use: %w", err)
	}
	return use, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// couponUsage считает использования купона; работает и внутри транзакции.
func couponUsage(ctx context.Context, q queryRower, couponID, customerKey string) (domain.CouponUsage, error) {
	usage := domain.CouponUsage{HasCustomer: customerKey != ""}
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE $2 <> '' AND customer_key = $2)
		FROM coupon_uses
		WHERE coupon_id = $1
	`, couponID, customerKey).Scan(&usage.Total, &usage.ByCustomer); err != nil {
		return domain.CouponUsage{}, fmt.Errorf("count coupon uses: %w", err)
	}
	return usage, nil
}

func scanCoupon(row rowScanner) (domain.Coupon, error) {
	var (
		coupon       domain.Coupon
		discountType string
		startsAt     sql.NullTime
		endsAt       sql.NullTime
	)
	if err := row.Scan(
		&coupon.ID, &coupon.Code, &discountType, &coupon.Value, &coupon.Active,
		&startsAt, &endsAt, &coupon.MaxUses, &coupon.PerCustomerLimit, &coupon.CreatedAt,
	); err != nil {
		return domain.Coupon{}, err
	}
	coupon.Type = domain.DiscountType(discountType)
	if startsAt.Valid {
		coupon.StartsAt = startsAt.Time
	}
	if endsAt.Valid {
		coupon.EndsAt = endsAt.Time
	}
	return coupon, nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
