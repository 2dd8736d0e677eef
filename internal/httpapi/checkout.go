package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

type checkoutRequest struct {
	Items      []cartLine      `json:"items"`
	Delivery   json.RawMessage `json:"delivery"`
	CouponCode string          `json:"coupon_code"`
}

type checkoutResponse struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
	Subtotal    string `json:"subtotal"`
	Discount    string `json:"discount"`
	ShippingFee string `json:"shipping_fee"`
	Total       string `json:"total"`
	AmountDue   string `json:"amount_due"`
}

func (h *Handler) checkout(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		abortWith(c, http.StatusBadRequest, "request body must be valid JSON", reasonInvalidJSON)
		return
	}

	var body checkoutRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		abortWith(c, http.StatusBadRequest, "request body must be valid JSON", reasonInvalidJSON)
		return
	}
	req, ok := toCheckoutRequest(c, body)
	if !ok {
		return
	}

	run := func(ctx context.Context) (int, interface{}) {
		result, err := h.deps.Checkout.Checkout(ctx, req)
		if err != nil {
			status, resp := errorBody(err)
			h.logError(c, status, err)
			return status, resp
		}
		return http.StatusCreated, checkoutResponse{
			OrderID:     result.OrderID,
			RedirectURL: result.RedirectURL,
			Subtotal:    money(result.Subtotal),
			Discount:    money(result.Discount),
			ShippingFee: money(result.ShippingFee),
			Total:       money(result.Total),
			AmountDue:   money(result.AmountDue),
		}
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if key == "" || h.deps.Idempotency == nil {
		status, resp := run(c.Request.Context())
		c.JSON(status, resp)
		return
	}
	h.withIdempotency(c, key, requestHash("checkout", req.CustomerID, raw), run)
}

func toCheckoutRequest(c *gin.Context, body checkoutRequest) (checkout.Request, bool) {
	var delivery domain.Delivery
	if len(body.Delivery) > 0 && string(body.Delivery) != "null" {
		if err := json.Unmarshal(body.Delivery, &delivery); err != nil {
			abortWith(c, http.StatusBadRequest, "delivery must be a JSON object", reasonInvalidJSON)
			return checkout.Request{}, false
		}
	}

	items := make([]checkout.Item, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, checkout.Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	return checkout.Request{
		CustomerID:      customerID(c),
		Items:           items,
		Delivery:        delivery,
		DeliveryPayload: body.Delivery,
		CouponCode:      body.CouponCode,
	}, true
}
