package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `id, customer_id, status, delivery, coupon_id, coupon_code, discount, shipping_fee, total,
	payment_reference, payment_id, payment_status, stock_reserved, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create сохраняет заказ, его позиции и использование купона в одной транзакции.
// Строка купона блокируется (FOR UPDATE), чтобы параллельные checkout не превысили лимиты.
func (r *orderRepository) Create(ctx context.Context, order domain.Order, use *domain.CouponUse) error {
	delivery, err := deliveryJSON(order)
	if err != nil {
		return err
	}

	return withTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		if use != nil {
			if err := checkCouponLimitsTx(ctx, tx, use); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`,
			order.ID, order.CustomerID, string(order.Status), delivery,
			nullString(order.CouponID), order.CouponCode, order.Discount, order.ShippingFee, order.Total,
			order.PaymentReference, order.PaymentID, string(order.PaymentStatus), order.StockReserved,
			order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateID
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, line := range order.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines (
					id, order_id, product_id, product_name, quantity, unit_price, created_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7)
			`,
				line.ID, order.ID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}

		if use != nil {
			usedAt := use.UsedAt
			if usedAt.IsZero() {
				usedAt = time.Now().UTC()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO coupon_uses (id, coupon_id, order_id, customer_key, used_at)
				VALUES ($1,$2,$3,$4,$5)
			`, use.ID, use.CouponID, order.ID, use.CustomerKey, usedAt); err != nil {
				if isUniqueViolation(err) {
					return domain.ErrDuplicateID
				}
				return fmt.Errorf("insert coupon use: %w", err)
			}
		}

		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if customerID == "" {
		return []domain.Order{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

// Save перезаписывает изменяемые поля заказа с проверкой версии.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	return r.Transition(ctx, order, domain.TransitionEffects{})
}

// Transition сохраняет заказ и применяет эффекты перехода в одной транзакции:
// при нехватке остатка ничего не применяется.
func (r *orderRepository) Transition(ctx context.Context, order domain.Order, effects domain.TransitionEffects) error {
	return withTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := r.updateOrderTx(ctx, tx, order); err != nil {
			return err
		}

		if effects.ReserveStock || effects.ReleaseStock {
			quantities, err := lineQuantitiesTx(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			for _, q := range quantities {
				if effects.ReserveStock {
					if err := reserveProductTx(ctx, tx, q.productID, q.qty); err != nil {
						return err
					}
				}
				if effects.ReleaseStock {
					if err := releaseProductTx(ctx, tx, q.productID, q.qty); err != nil {
						return err
					}
				}
			}
		}

		if effects.DeleteCouponUse {
			if _, err := tx.ExecContext(ctx, `DELETE FROM coupon_uses WHERE order_id = $1`, order.ID); err != nil {
				return fmt.Errorf("delete coupon use: %w", err)
			}
		}

		return nil
	})
}

func (r *orderRepository) updateOrderTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	updatedAt := order.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    discount = $2,
		    shipping_fee = $3,
		    total = $4,
		    payment_reference = $5,
		    payment_id = $6,
		    payment_status = $7,
		    stock_reserved = $8,
		    version = version + 1,
		    updated_at = $9
		WHERE id = $10
		  AND version = $11
	`,
		string(order.Status),
		order.Discount,
		order.ShippingFee,
		order.Total,
		order.PaymentReference,
		order.PaymentID,
		string(order.PaymentStatus),
		order.StockReserved,
		updatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := orderExistsTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}
	return nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

type productQuantity struct {
	productID string
	qty       int
}

// lineQuantitiesTx агрегирует количество по товарам заказа; порядок по id
// исключает взаимные блокировки параллельных резервов.
func lineQuantitiesTx(ctx context.Context, tx *sql.Tx, orderID string) ([]productQuantity, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, SUM(quantity)
		FROM order_lines
		WHERE order_id = $1
		GROUP BY product_id
		ORDER BY product_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("aggregate order lines: %w", err)
	}
	defer rows.Close()

	result := make([]productQuantity, 0)
	for rows.Next() {
		var q productQuantity
		if err := rows.Scan(&q.productID, &q.qty); err != nil {
			return nil, fmt.Errorf("scan order line quantity: %w", err)
		}
		result = append(result, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order line quantities: %w", err)
	}
	return result, nil
}

func checkCouponLimitsTx(ctx context.Context, tx *sql.Tx, use *domain.CouponUse) error {
	coupon, err := scanCoupon(tx.QueryRowContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE id = $1
		FOR UPDATE
	`, use.CouponID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCouponNotFound
		}
		return fmt.Errorf("lock coupon: %w", err)
	}

	usage, err := couponUsage(ctx, tx, coupon.ID, use.CustomerKey)
	if err != nil {
		return err
	}
	if coupon.MaxUses > 0 && usage.Total >= coupon.MaxUses {
		return domain.ErrCouponGlobalLimit
	}
	if usage.HasCustomer && usage.ByCustomer >= coupon.CustomerLimit() {
		return domain.ErrCouponPerUserLimit
	}
	return nil
}

func orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func deliveryJSON(order domain.Order) ([]byte, error) {
	if len(order.DeliveryPayload) > 0 {
		return order.DeliveryPayload, nil
	}
	raw, err := json.Marshal(order.Delivery)
	if err != nil {
		return nil, fmt.Errorf("marshal delivery: %w", err)
	}
	return raw, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		status        string
		paymentStatus string
		delivery      []byte
		couponID      sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &status, &delivery, &couponID, &order.CouponCode,
		&order.Discount, &order.ShippingFee, &order.Total,
		&order.PaymentReference, &order.PaymentID, &paymentStatus, &order.StockReserved,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if couponID.Valid {
		order.CouponID = couponID.String
	}
	if len(delivery) > 0 {
		order.DeliveryPayload = append([]byte(nil), delivery...)
		if err := json.Unmarshal(delivery, &order.Delivery); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal delivery: %w", err)
		}
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
