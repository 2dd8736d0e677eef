package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listOrders(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortWith(c, http.StatusBadRequest, "limit must be a non-negative integer", "invalid_limit")
			return
		}
		limit = n
	}

	orders, err := h.deps.Orders.ListForCustomer(c.Request.Context(), customerID(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h *Handler) getOrder(c *gin.Context) {
	detail, err := h.deps.Orders.GetForCustomer(c.Request.Context(), c.Param("id"), customerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := toOrderResponse(detail.Order)
	resp.Timeline = toTimeline(detail.Timeline)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	o, err := h.deps.Orders.Cancel(c.Request.Context(), c.Param("id"), customerID(c), "")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}
