package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	// DefaultBaseURL — публичный API Mercado Pago.
	DefaultBaseURL = "https://api.mercadopago.com"
	defaultTimeout = 10 * time.Second

	opCreatePreference = "create_preference"
	opFetchPayment     = "fetch_payment"
	autoReturnApproved = "approved"
)

// Config — настройки клиента Mercado Pago.
type Config struct {
	BaseURL         string
	AccessToken     string
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	Timeout         time.Duration
	// Sandbox включает sandbox_init_point вместо init_point.
	Sandbox bool
	Breaker BreakerSettings
}

// StatusError — ответ провайдера с кодом вне 2xx.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mercadopago %s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Client — REST-клиент Mercado Pago, реализующий domain.PaymentGateway.
// У каждой операции свой breaker: сбои запросов из webhook не блокируют checkout.
type Client struct {
	http     *resty.Client
	cfg      Config
	breakers map[string]*Breaker
	metrics  *metrics.GatewayMetrics
	logger   *log.Entry
}

var operations = []string{opCreatePreference, opFetchPayment}

// NewClient создаёт клиента. Повторы не выполняются: отказы считает breaker.
func NewClient(cfg Config, m *metrics.GatewayMetrics, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "mercadopago")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Breaker == (BreakerSettings{}) {
		cfg.Breaker = DefaultBreakerSettings()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	breakers := make(map[string]*Breaker, len(operations))
	for _, op := range operations {
		breakers[op] = NewBreaker("mercadopago_"+op, cfg.Breaker, m, logger)
	}

	return &Client{
		http:     httpClient,
		cfg:      cfg,
		breakers: breakers,
		metrics:  m,
		logger:   logger,
	}
}

type preferenceItem struct {
	ID         string      `json:"id,omitempty"`
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id,omitempty"`
}

type preferencePayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type backURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type preferenceBody struct {
	Items             []preferenceItem `json:"items"`
	Payer             *preferencePayer `json:"payer,omitempty"`
	ExternalReference string           `json:"external_reference"`
	BackURLs          *backURLs        `json:"back_urls,omitempty"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	NotificationURL   string           `json:"notification_url,omitempty"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type paymentResponse struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
}

// CreatePreference создаёт платёжную форму (POST /checkout/preferences).
func (c *Client) CreatePreference(ctx context.Context, req domain.PreferenceRequest) (domain.Preference, error) {
	body := c.preferenceBody(req)

	var out preferenceResponse
	if err := c.call(ctx, opCreatePreference, func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			Post("/checkout/preferences")
	}); err != nil {
		return domain.Preference{}, err
	}

	redirect := out.InitPoint
	if c.cfg.Sandbox && out.SandboxInitPoint != "" {
		redirect = out.SandboxInitPoint
	}
	if out.ID == "" || redirect == "" {
		return domain.Preference{}, fmt.Errorf("mercadopago %s: incomplete response", opCreatePreference)
	}
	return domain.Preference{ID: out.ID, RedirectURL: redirect}, nil
}

// FetchPayment загружает платёж (GET /v1/payments/{id}).
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (domain.PaymentView, error) {
	if strings.TrimSpace(paymentID) == "" {
		return domain.PaymentView{}, domain.ErrMalformedNotification
	}

	var out paymentResponse
	if err := c.call(ctx, opFetchPayment, func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("id", paymentID).
			SetResult(&out).
			Get("/v1/payments/{id}")
	}); err != nil {
		return domain.PaymentView{}, err
	}

	id := out.ID.String()
	if id == "" {
		id = paymentID
	}
	return domain.PaymentView{
		ID:                id,
		Status:            domain.PaymentStatus(out.Status),
		StatusDetail:      out.StatusDetail,
		ExternalReference: out.ExternalReference,
		Amount:            out.TransactionAmount,
	}, nil
}

// Check сообщает об ошибке, пока разомкнут breaker любой операции.
func (c *Client) Check(context.Context) error {
	for _, op := range operations {
		if c.breakers[op].Open() {
			return fmt.Errorf("%w: %s", ErrBreakerOpen, op)
		}
	}
	return nil
}

// BreakerState возвращает состояние breaker операции для диагностики.
func (c *Client) BreakerState(op string) string {
	breaker, ok := c.breakers[op]
	if !ok {
		return ""
	}
	return breaker.State()
}

func (c *Client) call(ctx context.Context, op string, do func() (*resty.Response, error)) error {
	start := time.Now()
	_, err := c.breakers[op].Execute(func() (interface{}, error) {
		resp, err := do()
		if err != nil {
			return nil, fmt.Errorf("mercadopago %s: %w", op, err)
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			return nil, &StatusError{Operation: op, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
		}
		return nil, nil
	})
	c.metrics.ObserveCall(op, err, time.Since(start))

	if err != nil {
		entry := c.logger.WithError(err).WithField("operation", op)
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			entry = entry.WithField("status_code", statusErr.StatusCode)
		}
		if ctx.Err() != nil {
			entry = entry.WithField("ctx_err", ctx.Err().Error())
		}
		entry.Warn("mercadopago call failed")
	}
	return err
}

func (c *Client) preferenceBody(req domain.PreferenceRequest) preferenceBody {
	items := make([]preferenceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, preferenceItem{
			ID:         item.ID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  json.Number(item.UnitPrice.StringFixed(2)),
			CurrencyID: item.CurrencyID,
		})
	}

	body := preferenceBody{
		Items:             items,
		ExternalReference: req.ExternalReference,
		NotificationURL:   c.cfg.NotificationURL,
	}
	if req.PayerName != "" || req.PayerEmail != "" {
		body.Payer = &preferencePayer{Name: req.PayerName, Email: req.PayerEmail}
	}
	if c.cfg.SuccessURL != "" || c.cfg.FailureURL != "" || c.cfg.PendingURL != "" {
		body.BackURLs = &backURLs{Success: c.cfg.SuccessURL, Failure: c.cfg.FailureURL, Pending: c.cfg.PendingURL}
	}
	if c.cfg.SuccessURL != "" {
		body.AutoReturn = autoReturnApproved
	}
	return body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ domain.PaymentGateway = (*Client)(nil)
