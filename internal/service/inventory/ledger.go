package inventory

import (
	"context"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Ledger — операции с остатками поверх ProductRepository.
type Ledger struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewLedger создаёт складской учёт.
func NewLedger(products domain.ProductRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Ledger{products: products, logger: logger}
}

// Reserve списывает qty единиц, если товар доступен и остатка хватает.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) error {
	if err := validate(productID, qty); err != nil {
		return err
	}
	return l.products.Reserve(ctx, productID, qty)
}

// Release возвращает qty единиц на склад без дополнительных условий.
func (l *Ledger) Release(ctx context.Context, productID string, qty int) error {
	if err := validate(productID, qty); err != nil {
		return err
	}
	return l.products.Release(ctx, productID, qty)
}

// ReserveLines резервирует остаток по всем позициям или не меняет ничего.
// При отказе на любой позиции уже списанное возвращается обратно.
func (l *Ledger) ReserveLines(ctx context.Context, lines []domain.OrderLine) error {
	need, err := aggregate(lines)
	if err != nil {
		return err
	}

	reserved := make([]domain.OrderLine, 0, len(need))
	for _, line := range need {
		if err := l.products.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			l.rollback(ctx, reserved)
			return err
		}
		reserved = append(reserved, line)
	}
	return nil
}

// ReleaseLines возвращает остаток по всем позициям.
func (l *Ledger) ReleaseLines(ctx context.Context, lines []domain.OrderLine) error {
	need, err := aggregate(lines)
	if err != nil {
		return err
	}
	for _, line := range need {
		if err := l.products.Release(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) rollback(ctx context.Context, reserved []domain.OrderLine) {
	for _, line := range reserved {
		if err := l.products.Release(ctx, line.ProductID, line.Quantity); err != nil {
			l.logger.WithError(err).WithFields(log.Fields{
				"product_id": line.ProductID,
				"qty":        line.Quantity,
			}).Error("rollback reservation failed")
		}
	}
}

// aggregate суммирует количество по товару; порядок по product_id
// одинаков с postgres-реализацией, чтобы блокировки брались в одном порядке.
func aggregate(lines []domain.OrderLine) ([]domain.OrderLine, error) {
	if len(lines) == 0 {
		return nil, domain.ErrCartEmpty
	}
	totals := make(map[string]int, len(lines))
	for _, line := range lines {
		if err := validate(line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
		totals[line.ProductID] += line.Quantity
	}

	out := make([]domain.OrderLine, 0, len(totals))
	for id, qty := range totals {
		out = append(out, domain.OrderLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func validate(productID string, qty int) error {
	if strings.TrimSpace(productID) == "" {
		return domain.ErrProductIDRequired
	}
	if qty <= 0 {
		return domain.ErrQuantityInvalid
	}
	return nil
}
