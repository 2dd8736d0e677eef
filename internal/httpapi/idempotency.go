package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	jsonContentType      = "application/json; charset=utf-8"
	headerReplayed       = "Idempotency-Replayed"
	maxIdempotencyKeyLen = 255
)

// withIdempotency выполняет run не больше одного раза на ключ и повторяет
// сохранённый ответ (успешный или ошибочный) для повторов того же запроса.
func (h *Handler) withIdempotency(
	c *gin.Context,
	key, reqHash string,
	run func(ctx context.Context) (int, interface{}),
) {
	ctx := c.Request.Context()
	key = strings.TrimSpace(key)
	if len(key) > maxIdempotencyKeyLen {
		abortWith(c, http.StatusBadRequest, "idempotency key is too long", "idempotency_key_invalid")
		return
	}
	logger := requestLogger(c, h.logger).WithField("idempotency_key", key)

	record, err := h.deps.Idempotency.Reserve(ctx, key, reqHash, h.now().Add(h.cfg.IdempotencyTTL))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIdempotencyKeyReused):
			abortWith(c, http.StatusConflict, "idempotency key is already used with different request payload", reasonIdempotencyKeyReused)
		case errors.Is(err, domain.ErrIdempotencyReplay):
			h.replay(c, record)
		default:
			logger.WithError(err).Warn("failed to reserve idempotency key")
			abortWith(c, http.StatusInternalServerError, messageInternal, reasonInternal)
		}
		return
	}

	status, resp := run(ctx)
	data, err := json.Marshal(resp)
	if err != nil {
		logger.WithError(err).Error("failed to encode response")
		abortWith(c, http.StatusInternalServerError, messageInternal, reasonInternal)
		return
	}

	// Отмена клиента не должна оставить ключ в pending до конца срока.
	reply := domain.StoredReply{Status: status, Body: data}
	if err := h.deps.Idempotency.Complete(context.WithoutCancel(ctx), key, reply); err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}

	c.Data(status, jsonContentType, data)
}

func (h *Handler) replay(c *gin.Context, record domain.IdempotencyRecord) {
	switch {
	case record.Replayable():
		c.Header(headerReplayed, "true")
		c.Data(record.Reply.Status, jsonContentType, record.Reply.Body)
	case record.State == domain.IdempotencyPending:
		abortWith(c, http.StatusConflict, "request with the same idempotency key is already processing", reasonIdempotencyInProgress)
	default:
		abortWith(c, http.StatusInternalServerError, messageInternal, reasonInternal)
	}
}

// requestHash связывает ключ идемпотентности с операцией, покупателем и телом запроса.
func requestHash(operation, customerID string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(operation))
	sum.Write([]byte{0})
	sum.Write([]byte(customerID))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
