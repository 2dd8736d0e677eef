package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newLedger(t *testing.T) (*Ledger, domain.ProductRepository) {
	t.Helper()

	repo := memory.NewProductRepository(memory.NewStore())
	for _, p := range []domain.Product{
		{ID: "p-1", Name: "Caneca", Price: decimal.NewFromInt(30), Stock: 5, Available: true},
		{ID: "p-2", Name: "Camiseta", Price: decimal.NewFromInt(50), Stock: 1, Available: true},
		{ID: "p-3", Name: "Boné", Price: decimal.NewFromInt(40), Stock: 9, Available: false},
	} {
		if err := repo.Create(context.Background(), p); err != nil {
			t.Fatalf("seed %s: %v", p.ID, err)
		}
	}
	return NewLedger(repo, nil), repo
}

func stockOf(t *testing.T, repo domain.ProductRepository, id string) int {
	t.Helper()
	p, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return p.Stock
}

func TestLedger_ReserveReleaseRestoresStock(t *testing.T) {
	ledger, repo := newLedger(t)
	ctx := context.Background()

	if err := ledger.Reserve(ctx, "p-1", 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := stockOf(t, repo, "p-1"); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
	if err := ledger.Release(ctx, "p-1", 3); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := stockOf(t, repo, "p-1"); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}
}

func TestLedger_ReserveNeverGoesNegative(t *testing.T) {
	ledger, repo := newLedger(t)
	ctx := context.Background()

	if err := ledger.Reserve(ctx, "p-2", 2); !errors.Is(err, domain.ErrStockUnavailable) {
		t.Fatalf("expected ErrStockUnavailable, got %v", err)
	}
	if err := ledger.Reserve(ctx, "p-3", 1); !errors.Is(err, domain.ErrStockUnavailable) {
		t.Fatalf("expected ErrStockUnavailable for unavailable product, got %v", err)
	}
	if got := stockOf(t, repo, "p-2"); got != 1 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestLedger_ValidatesQuantity(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	if err := ledger.Reserve(ctx, "p-1", 0); !errors.Is(err, domain.ErrQuantityInvalid) {
		t.Fatalf("expected ErrQuantityInvalid, got %v", err)
	}
	if err := ledger.Release(ctx, "p-1", -1); !errors.Is(err, domain.ErrQuantityInvalid) {
		t.Fatalf("expected ErrQuantityInvalid, got %v", err)
	}
	if err := ledger.Reserve(ctx, "", 1); !errors.Is(err, domain.ErrProductIDRequired) {
		t.Fatalf("expected ErrProductIDRequired, got %v", err)
	}
}

func TestLedger_ReserveLinesAllOrNothing(t *testing.T) {
	ledger, repo := newLedger(t)
	ctx := context.Background()

	lines := []domain.OrderLine{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 1},
		{ProductID: "p-2", Quantity: 1},
	}
	if err := ledger.ReserveLines(ctx, lines); !errors.Is(err, domain.ErrStockUnavailable) {
		t.Fatalf("expected ErrStockUnavailable, got %v", err)
	}
	if got := stockOf(t, repo, "p-1"); got != 5 {
		t.Fatalf("expected p-1 stock restored to 5, got %d", got)
	}
	if got := stockOf(t, repo, "p-2"); got != 1 {
		t.Fatalf("expected p-2 stock 1, got %d", got)
	}

	ok := []domain.OrderLine{{ProductID: "p-1", Quantity: 2}, {ProductID: "p-2", Quantity: 1}}
	if err := ledger.ReserveLines(ctx, ok); err != nil {
		t.Fatalf("reserve lines: %v", err)
	}
	if stockOf(t, repo, "p-1") != 3 || stockOf(t, repo, "p-2") != 0 {
		t.Fatal("unexpected stock after reserve lines")
	}
	if err := ledger.ReleaseLines(ctx, ok); err != nil {
		t.Fatalf("release lines: %v", err)
	}
	if stockOf(t, repo, "p-1") != 5 || stockOf(t, repo, "p-2") != 1 {
		t.Fatal("unexpected stock after release lines")
	}
}
