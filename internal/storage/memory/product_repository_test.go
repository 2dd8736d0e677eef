package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestProductRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository(memory.NewStore())

	products := []domain.Product{
		{ID: "p-1", Name: "Vestido Floral", Price: decimal.NewFromInt(120), Stock: 2, Available: true},
		{ID: "p-2", Name: "calça jeans", Price: decimal.NewFromInt(90), Stock: 0, Available: true},
		{ID: "p-3", Name: "Blusa", Description: "blusa floral de seda", Price: decimal.NewFromInt(60), Stock: 4, Available: false},
	}
	for _, p := range products {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create %s failed: %v", p.ID, err)
		}
	}

	all, err := repo.List(ctx, domain.ProductFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "p-3" || all[1].ID != "p-2" {
		t.Fatalf("expected case-insensitive name order, got %+v", all)
	}

	floral, err := repo.List(ctx, domain.ProductFilter{Query: "FLORAL"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(floral) != 2 {
		t.Fatalf("expected 2 floral products, got %d", len(floral))
	}

	suggest, err := repo.List(ctx, domain.ProductFilter{Query: "floral", OnlyAvailable: true, InStockOnly: true, Limit: 5})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(suggest) != 1 || suggest[0].ID != "p-1" {
		t.Fatalf("unexpected suggestions: %+v", suggest)
	}
}

func TestProductRepository_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository(memory.NewStore())
	if err := repo.Create(ctx, domain.Product{ID: "p-1", Name: "Saia", Price: decimal.NewFromInt(10), Stock: 2, Available: true}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.Reserve(ctx, "p-1", 3); !errors.Is(err, domain.ErrStockUnavailable) {
		t.Fatalf("expected ErrStockUnavailable, got %v", err)
	}
	if err := repo.Reserve(ctx, "p-1", 2); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := repo.Release(ctx, "p-1", 1); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := repo.Reserve(ctx, "missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	product, err := repo.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if product.Stock != 1 {
		t.Fatalf("expected stock 1, got %d", product.Stock)
	}
}

func TestCouponRepository_CaseInsensitiveCode(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCouponRepository(memory.NewStore())

	if err := repo.Create(ctx, domain.Coupon{ID: "c-1", Code: " Verao10 ", Type: domain.DiscountFixed, Value: decimal.NewFromInt(10), Active: true}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	coupon, err := repo.GetByCode(ctx, "verao10")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if coupon.Code != "VERAO10" {
		t.Fatalf("expected normalized code, got %q", coupon.Code)
	}
	if err := repo.Create(ctx, domain.Coupon{ID: "c-2", Code: "VERAO10"}); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := repo.GetByCode(ctx, "missing"); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}
