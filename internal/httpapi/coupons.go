package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type applyCouponRequest struct {
	Code  string     `json:"code"`
	Items []cartLine `json:"items"`
}

type applyCouponResponse struct {
	Code     string `json:"code"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Subtotal string `json:"subtotal"`
	Discount string `json:"discount"`
	Total    string `json:"total"`
}

// applyCoupon считает скидку для корзины без оформления заказа.
// Анонимный вызов не проверяет лимит на покупателя: он проверяется при checkout.
func (h *Handler) applyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	subtotal, err := h.cartSubtotal(c, req.Items)
	if err != nil {
		h.fail(c, err)
		return
	}

	quote, err := h.deps.Coupons.ValidateAndPrice(ctx, req.Code, subtotal, domain.CustomerKey(customerID(c), ""))
	if err != nil {
		h.fail(c, err)
		return
	}

	total := subtotal.Sub(quote.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	c.JSON(http.StatusOK, applyCouponResponse{
		Code:     quote.Coupon.Code,
		Type:     string(quote.Coupon.Type),
		Value:    quote.Coupon.Value.String(),
		Subtotal: money(subtotal),
		Discount: money(quote.Discount),
		Total:    money(total),
	})
}

// cartSubtotal суммирует корзину; позиция без цены берёт текущую цену каталога.
func (h *Handler) cartSubtotal(c *gin.Context, items []cartLine) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, domain.ErrCartEmpty
	}

	subtotal := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			return decimal.Zero, domain.ErrQuantityInvalid
		}
		price := item.UnitPrice
		if price.IsZero() {
			product, err := h.deps.Catalog.Get(c.Request.Context(), item.ProductID)
			if err != nil {
				return decimal.Zero, err
			}
			price = product.Price
		}
		if !price.IsPositive() {
			return decimal.Zero, domain.ErrUnitPriceInvalid
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal, nil
}
