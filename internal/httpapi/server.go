package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// Catalog — чтение каталога и проверки остатка.
type Catalog interface {
	List(ctx context.Context, filter catalog.Filter) ([]domain.Product, error)
	Get(ctx context.Context, id string) (domain.Product, error)
	Suggest(ctx context.Context, term string) ([]domain.Product, error)
	CheckStock(ctx context.Context, productID string, qty int) (catalog.StockInfo, error)
	ValidateCart(ctx context.Context, items []catalog.CartItem) (catalog.CartCheck, error)
}

// Coupons рассчитывает скидку.
type Coupons interface {
	ValidateAndPrice(ctx context.Context, code string, subtotal decimal.Decimal, customerKey string) (coupon.Quote, error)
}

// Checkout оформляет заказ.
type Checkout interface {
	Checkout(ctx context.Context, req checkout.Request) (checkout.Result, error)
}

// Orders — операции покупателя над своими заказами.
type Orders interface {
	GetForCustomer(ctx context.Context, orderID, customerID string) (order.Detail, error)
	ListForCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
	Cancel(ctx context.Context, orderID, customerID, reason string) (domain.Order, error)
}

// Notifications применяет уведомления платёжного провайдера.
type Notifications interface {
	HandleNotification(ctx context.Context, n domain.Notification) (payment.Outcome, error)
}

// StockLedger — ручная корректировка остатка.
type StockLedger interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
}

// Dependencies — сервисы, которые обслуживает HTTP API.
type Dependencies struct {
	Catalog       Catalog
	Coupons       Coupons
	Checkout      Checkout
	Orders        Orders
	Notifications Notifications
	// Ledger и AdminToken вместе включают /api/admin.
	Ledger      StockLedger
	Idempotency domain.IdempotencyRepository
}

// Config — параметры HTTP API.
type Config struct {
	AdminToken     string
	IdempotencyTTL time.Duration
}

// Handler обслуживает публичный JSON API магазина.
type Handler struct {
	deps    Dependencies
	cfg     Config
	logger  *log.Entry
	metrics *metrics.HTTPMetrics
	now     func() time.Time
}

// NewHandler создаёт обработчик. logger и m могут быть nil.
func NewHandler(deps Dependencies, cfg Config, logger *log.Entry, m *metrics.HTTPMetrics) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = domain.DefaultIdempotencyTTL
	}
	return &Handler{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Router собирает gin.Engine со всеми маршрутами и middleware.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(requestID(), accessLog(h.logger), recovery(h.logger), observe(h.metrics))

	api := r.Group("/api")
	api.GET("/products", h.listProducts)
	api.GET("/products/suggest", h.suggestProducts)
	api.GET("/products/:id", h.getProduct)
	api.POST("/stock/check", h.checkStock)
	api.POST("/cart/validate", h.validateCart)
	api.POST("/coupons/apply", h.applyCoupon)
	api.POST("/checkout", h.checkout)
	api.POST("/webhooks/mercadopago", h.mercadoPagoWebhook)

	orders := api.Group("/orders", requireCustomer())
	orders.GET("", h.listOrders)
	orders.GET("/:id", h.getOrder)
	orders.POST("/:id/cancel", h.cancelOrder)

	if h.cfg.AdminToken != "" && h.deps.Ledger != nil {
		admin := api.Group("/admin", requireAdmin(h.cfg.AdminToken))
		admin.POST("/products/:id/stock", h.adjustStock)
	}

	r.NoRoute(func(c *gin.Context) {
		abortWith(c, http.StatusNotFound, "route not found", "route_not_found")
	})
	r.NoMethod(func(c *gin.Context) {
		abortWith(c, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
	})
	return r
}
