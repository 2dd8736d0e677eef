package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	reasonInternal              = "internal"
	reasonInvalidJSON           = "invalid_json"
	reasonUnauthorized          = "customer_id_required"
	reasonForbidden             = "forbidden"
	reasonIdempotencyKeyReused  = "idempotency_key_reused"
	reasonIdempotencyInProgress = "idempotency_in_progress"
	messageInternal             = "internal error"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindState:
		return http.StatusConflict
	case domain.KindLimit:
		return http.StatusUnprocessableEntity
	case domain.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody переводит ошибку в HTTP-статус и тело. Детали инфраструктурных
// ошибок наружу не попадают.
func errorBody(err error) (int, errorResponse) {
	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, errorResponse{Error: messageInternal, Reason: reasonInternal}
	}
	return statusForKind(de.Kind()), errorResponse{Error: de.Error(), Reason: de.Code()}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, body := errorBody(err)
	h.logError(c, status, err)
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) logError(c *gin.Context, status int, err error) {
	entry := requestLogger(c, h.logger).WithError(err).WithField("reason", domain.CodeOf(err))
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		return
	}
	entry.Debug("request rejected")
}

func abortWith(c *gin.Context, status int, message, reason string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: message, Reason: reason})
}
