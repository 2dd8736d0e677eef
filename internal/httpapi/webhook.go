package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// notificationID принимает id платежа и строкой, и числом.
type notificationID string

func (id *notificationID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = notificationID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = notificationID(n.String())
	return nil
}

type webhookBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID notificationID `json:"id"`
	} `json:"data"`
}

// mercadoPagoWebhook подтверждает любое уведомление, кроме некорректного.
// Поддерживаются оба формата: тело {type, data:{id}} и query ?topic=payment&id=.
func (h *Handler) mercadoPagoWebhook(c *gin.Context) {
	n, ok := parseNotification(c)
	if !ok {
		abortWith(c, http.StatusBadRequest, domain.ErrMalformedNotification.Error(), domain.CodeOf(domain.ErrMalformedNotification))
		return
	}

	outcome, err := h.deps.Notifications.HandleNotification(c.Request.Context(), n)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedNotification) {
			h.fail(c, err)
			return
		}
		// Провайдер повторит уведомление только при не-2xx; исход уже
		// учтён в логах и метриках адаптера.
		requestLogger(c, h.logger).WithError(err).WithField("outcome", outcome).Warn("payment notification acknowledged with error")
	}
	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

func parseNotification(c *gin.Context) (domain.Notification, bool) {
	n := domain.Notification{
		Type:      firstNonEmpty(c.Query("type"), c.Query("topic")),
		PaymentID: firstNonEmpty(c.Query("data.id"), c.Query("id")),
	}

	raw, err := c.GetRawData()
	if err != nil {
		return domain.Notification{}, false
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		var body webhookBody
		if err := json.Unmarshal(raw, &body); err != nil {
			if n.PaymentID == "" {
				return domain.Notification{}, false
			}
		} else {
			n.Type = firstNonEmpty(body.Type, body.Topic, n.Type)
			n.PaymentID = firstNonEmpty(string(body.Data.ID), n.PaymentID)
		}
	}

	if n.Type == "" && n.PaymentID == "" {
		return domain.Notification{}, false
	}
	return n, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
