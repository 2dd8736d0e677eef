package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// repositories — хранилища одного драйвера.
type repositories struct {
	products    domain.ProductRepository
	coupons     domain.CouponRepository
	orders      domain.OrderRepository
	outbox      domain.OutboxRepository
	timeline    domain.TimelineRepository
	idempotency domain.IdempotencyRepository

	ping  func(ctx context.Context) error
	close func() error
}

func initRepositories(ctx context.Context, cfg Config, logger *log.Entry) (*repositories, error) {
	switch cfg.Storage.Driver {
	case StorageDriverMemory, "":
		store := memory.NewStore()
		repos := &repositories{
			products:    memory.NewProductRepository(store),
			coupons:     memory.NewCouponRepository(store),
			orders:      memory.NewOrderRepository(store),
			outbox:      memory.NewOutboxRepository(),
			timeline:    memory.NewTimelineRepository(),
			idempotency: memory.NewIdempotencyRepository(),
			ping:        func(context.Context) error { return nil },
			close:       func() error { return nil },
		}
		if cfg.Storage.SeedDemo {
			if err := seedCatalog(ctx, repos.products, repos.coupons); err != nil {
				return nil, fmt.Errorf("seed demo catalog: %w", err)
			}
			logger.Info("in-memory catalog seeded with demo products")
		}
		logger.Info("storage: memory")
		return repos, nil

	case StorageDriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN, postgres.WithPool(postgres.PoolConfig{
			MaxConns:        cfg.Storage.PostgresMaxConns,
			ConnMaxLifetime: cfg.Storage.PostgresConnMaxLifetime,
		}))
		if err != nil {
			return nil, err
		}
		if cfg.Storage.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err == nil {
				logger.WithFields(log.Fields{"version": state.Version, "applied": state.Applied}).Info("postgres schema is up to date")
			}
		}
		logger.Info("storage: postgres")
		return &repositories{
			products:    postgres.NewProductRepository(store),
			coupons:     postgres.NewCouponRepository(store),
			orders:      postgres.NewOrderRepository(store),
			outbox:      postgres.NewOutboxRepository(store),
			timeline:    postgres.NewTimelineRepository(store),
			idempotency: postgres.NewIdempotencyRepository(store),
			ping:        store.Ping,
			close:       store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// seedCatalog заполняет пустой каталог для локального запуска.
func seedCatalog(ctx context.Context, products domain.ProductRepository, coupons domain.CouponRepository) error {
	now := time.Now().UTC()
	demo := []domain.Product{
		{ID: "caneca-floral", Name: "Caneca Floral", Description: "Caneca de cerâmica pintada à mão", Price: decimal.RequireFromString("49.90"), OriginalPrice: decimal.RequireFromString("59.90"), Stock: 20, Available: true},
		{ID: "camiseta-basica", Name: "Camiseta Básica", Description: "Algodão orgânico", Price: decimal.RequireFromString("79.00"), Stock: 35, Available: true},
		{ID: "ecobag", Name: "Ecobag", Description: "Sacola de lona reutilizável", Price: decimal.RequireFromString("25.00"), Stock: 50, Available: true},
		{ID: "quadro-vintage", Name: "Quadro Vintage", Description: "Edição limitada", Price: decimal.RequireFromString("189.00"), Stock: 2, Available: true},
	}
	for _, p := range demo {
		p.CreatedAt, p.UpdatedAt = now, now
		if err := products.Create(ctx, p); err != nil {
			return fmt.Errorf("create product %s: %w", p.ID, err)
		}
	}

	demoCoupons := []domain.Coupon{
		{ID: "coupon-bemvindo", Code: "BEMVINDO10", Type: domain.DiscountPercentage, Value: decimal.NewFromInt(10), Active: true, PerCustomerLimit: 1},
		{ID: "coupon-frete", Code: "DESCONTO20", Type: domain.DiscountFixed, Value: decimal.NewFromInt(20), Active: true, MaxUses: 100, PerCustomerLimit: 1},
	}
	for _, c := range demoCoupons {
		c.CreatedAt = now
		if err := coupons.Create(ctx, c); err != nil {
			return fmt.Errorf("create coupon %s: %w", c.Code, err)
		}
	}
	return nil
}
