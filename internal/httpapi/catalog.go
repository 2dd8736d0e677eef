package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
)

func (h *Handler) listProducts(c *gin.Context) {
	filter := catalog.Filter{
		Query:         strings.TrimSpace(c.Query("q")),
		OnlyAvailable: c.DefaultQuery("available", "true") != "false",
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			abortWith(c, http.StatusBadRequest, "limit must be a non-negative integer", "invalid_limit")
			return
		}
		filter.Limit = limit
	}

	products, err := h.deps.Catalog.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": toProductList(products)})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.deps.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(product))
}

func (h *Handler) suggestProducts(c *gin.Context) {
	products, err := h.deps.Catalog.Suggest(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": toProductList(products)})
}

type stockCheckRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type stockCheckResponse struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	Available    bool   `json:"available"`
	CurrentStock int    `json:"current_stock"`
	CanAdd       bool   `json:"can_add"`
}

func (h *Handler) checkStock(c *gin.Context) {
	var req stockCheckRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	info, err := h.deps.Catalog.CheckStock(c.Request.Context(), req.ProductID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stockCheckResponse{
		ProductID:    info.ProductID,
		ProductName:  info.ProductName,
		Available:    info.Available,
		CurrentStock: info.CurrentStock,
		CanAdd:       info.CanAdd,
	})
}

type cartValidateRequest struct {
	Items []stockCheckRequest `json:"items"`
}

type cartItemResponse struct {
	ProductID    string `json:"product_id"`
	Available    bool   `json:"available"`
	CurrentStock int    `json:"current_stock"`
	Requested    int    `json:"requested"`
}

func (h *Handler) validateCart(c *gin.Context) {
	var req cartValidateRequest
	if !bindJSON(c, &req) {
		return
	}

	items := make([]catalog.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, catalog.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	check, err := h.deps.Catalog.ValidateCart(c.Request.Context(), items)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]cartItemResponse, 0, len(check.Items))
	for _, item := range check.Items {
		out = append(out, cartItemResponse(item))
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":   check.Valid,
		"message": check.Message,
		"items":   out,
	})
}

type stockAdjustRequest struct {
	// Action: reserve списывает, release возвращает.
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) adjustStock(c *gin.Context) {
	var req stockAdjustRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	productID := c.Param("id")
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "reserve":
		err = h.deps.Ledger.Reserve(ctx, productID, req.Quantity)
	case "release":
		err = h.deps.Ledger.Release(ctx, productID, req.Quantity)
	default:
		abortWith(c, http.StatusBadRequest, "action must be reserve or release", "invalid_action")
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	info, err := h.deps.Catalog.CheckStock(ctx, productID, 1)
	if err != nil {
		h.fail(c, err)
		return
	}
	requestLogger(c, h.logger).WithFields(log.Fields{
		"product_id": productID,
		"action":     req.Action,
		"quantity":   req.Quantity,
		"stock":      info.CurrentStock,
	}).Info("stock adjusted manually")
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "stock": info.CurrentStock})
}

// bindJSON декодирует тело; при ошибке отвечает 400 и возвращает false.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWith(c, http.StatusBadRequest, "request body must be valid JSON", reasonInvalidJSON)
		return false
	}
	return true
}
