package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderCustomerID     = "X-Customer-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderAdminToken     = "X-Admin-Token"

	ctxKeyLogger    = "storefront.logger"
	ctxKeyRequestID = "storefront.request_id"
)

// requestID берёт X-Request-ID клиента или генерирует новый.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// accessLog пишет одну строку на запрос и кладёт в контекст logger с request_id.
func accessLog(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		entry := logger.WithField("request_id", c.GetString(ctxKeyRequestID))
		c.Set(ctxKeyLogger, entry)

		c.Next()

		fields := log.Fields{
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.WithFields(fields).Warn("http request")
		default:
			entry.WithFields(fields).Debug("http request")
		}
	}
}

// recovery превращает панику обработчика в 500 без деталей.
func recovery(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestLogger(c, logger).WithField("panic", r).Error("handler panic recovered")
				abortWith(c, http.StatusInternalServerError, messageInternal, reasonInternal)
			}
		}()
		c.Next()
	}
}

func observe(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func requestLogger(c *gin.Context, fallback *log.Entry) *log.Entry {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if entry, ok := v.(*log.Entry); ok {
			return entry
		}
	}
	return fallback
}

// requireCustomer отклоняет запрос без X-Customer-ID.
func requireCustomer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader(HeaderCustomerID)) == "" {
			abortWith(c, http.StatusUnauthorized, "customer id is required", reasonUnauthorized)
			return
		}
		c.Next()
	}
}

func requireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(HeaderAdminToken)), []byte(token)) != 1 {
			abortWith(c, http.StatusForbidden, "forbidden", reasonForbidden)
			return
		}
		c.Next()
	}
}

func customerID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderCustomerID))
}
