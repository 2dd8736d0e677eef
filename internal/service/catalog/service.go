package catalog

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	suggestMinTermLength = 2
	suggestLimit         = 5
)

// Filter — параметры публичного списка товаров.
type Filter struct {
	Query         string
	OnlyAvailable bool
	Limit         int
}

// StockInfo — ответ на проверку остатка одного товара.
type StockInfo struct {
	ProductID    string
	ProductName  string
	Available    bool
	CurrentStock int
	CanAdd       bool
}

// CartItem — позиция корзины для проверки остатков.
type CartItem struct {
	ProductID string
	Quantity  int
}

// CartItemCheck — результат проверки одной позиции корзины.
type CartItemCheck struct {
	ProductID    string
	Available    bool
	CurrentStock int
	Requested    int
}

// CartCheck — результат проверки всей корзины.
type CartCheck struct {
	Valid   bool
	Message string
	Items   []CartItemCheck
}

// Service — публичная поверхность каталога.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{products: products, logger: logger}
}

// List возвращает товары по фильтру, отсортированные по имени.
func (s *Service) List(ctx context.Context, filter Filter) ([]domain.Product, error) {
	products, err := s.products.List(ctx, domain.ProductFilter{
		Query:         filter.Query,
		OnlyAvailable: filter.OnlyAvailable,
		Limit:         filter.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Get возвращает доступный товар. Снятый с продажи товар снаружи не виден.
func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, domain.ErrProductIDRequired
	}
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.Available {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Suggest подсказывает до пяти товаров в наличии по началу поиска.
func (s *Service) Suggest(ctx context.Context, term string) ([]domain.Product, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < suggestMinTermLength {
		return []domain.Product{}, nil
	}
	products, err := s.products.List(ctx, domain.ProductFilter{
		Query:         term,
		OnlyAvailable: true,
		InStockOnly:   true,
		Limit:         suggestLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest products: %w", err)
	}
	return products, nil
}

// CheckStock сообщает, хватает ли остатка на qty единиц товара.
func (s *Service) CheckStock(ctx context.Context, productID string, qty int) (StockInfo, error) {
	if strings.TrimSpace(productID) == "" {
		return StockInfo{}, domain.ErrProductIDRequired
	}
	if qty <= 0 {
		return StockInfo{}, domain.ErrQuantityInvalid
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return StockInfo{}, err
	}
	return StockInfo{
		ProductID:    product.ID,
		ProductName:  product.Name,
		Available:    product.Stock >= qty,
		CurrentStock: product.Stock,
		CanAdd:       product.Stock > 0,
	}, nil
}

// ValidateCart проверяет остатки по всем позициям корзины.
// Сообщение называет последний товар, которого не хватает.
func (s *Service) ValidateCart(ctx context.Context, items []CartItem) (CartCheck, error) {
	if len(items) == 0 {
		return CartCheck{}, domain.ErrCartEmpty
	}

	result := CartCheck{Valid: true, Items: make([]CartItemCheck, 0, len(items))}
	for _, item := range items {
		if item.Quantity <= 0 {
			return CartCheck{}, domain.ErrQuantityInvalid
		}
		product, err := s.products.Get(ctx, item.ProductID)
		if err != nil {
			return CartCheck{}, err
		}

		check := CartItemCheck{
			ProductID:    product.ID,
			Available:    product.Available && product.Stock >= item.Quantity,
			CurrentStock: product.Stock,
			Requested:    item.Quantity,
		}
		if !check.Available {
			result.Valid = false
			result.Message = fmt.Sprintf("insufficient stock for %s, available: %d", product.Name, product.Stock)
		}
		result.Items = append(result.Items, check)
	}

	if !result.Valid {
		s.logger.WithField("message", result.Message).Debug("cart validation failed")
	}
	return result, nil
}
