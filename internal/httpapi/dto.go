package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Денежные суммы отдаются строками с двумя знаками: "135.00".
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type productResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Price           string `json:"price"`
	OriginalPrice   string `json:"original_price,omitempty"`
	DiscountPercent int64  `json:"discount_percent,omitempty"`
	Stock           int    `json:"stock"`
	Available       bool   `json:"available"`
}

func toProductResponse(p domain.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		Stock:       p.Stock,
		Available:   p.Available,
	}
	if p.HasDiscount() {
		resp.OriginalPrice = money(p.OriginalPrice)
		resp.DiscountPercent = p.DiscountPercent()
	}
	return resp
}

func toProductList(products []domain.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

type orderLineResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

type timelineResponse struct {
	Type       string    `json:"type"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	PaymentID  string    `json:"payment_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	Lines         []orderLineResponse `json:"lines"`
	Subtotal      string              `json:"subtotal"`
	Discount      string              `json:"discount"`
	CouponCode    string              `json:"coupon_code,omitempty"`
	ShippingFee   string              `json:"shipping_fee"`
	Total         string              `json:"total"`
	AmountDue     string              `json:"amount_due"`
	PaymentStatus string              `json:"payment_status,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Timeline      []timelineResponse  `json:"timeline,omitempty"`
}

func toOrderResponse(o domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, orderLineResponse{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   money(line.UnitPrice),
			Subtotal:    money(line.Subtotal()),
		})
	}
	return orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		Lines:         lines,
		Subtotal:      money(o.Subtotal()),
		Discount:      money(o.Discount),
		CouponCode:    o.CouponCode,
		ShippingFee:   money(o.ShippingFee),
		Total:         money(o.Total),
		AmountDue:     money(o.AmountDue()),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func toTimeline(events []domain.TimelineEvent) []timelineResponse {
	out := make([]timelineResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineResponse{
			Type:       e.Type,
			Status:     string(e.Status),
			Reason:     e.Reason,
			PaymentID:  e.PaymentID,
			OccurredAt: e.Occurred,
		})
	}
	return out
}
