package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerCustomerID     = "X-Customer-ID"
)

type scenarioKind string

const (
	scenarioBrowse         scenarioKind = "browse"
	scenarioCheckout       scenarioKind = "checkout"
	scenarioCheckoutCancel scenarioKind = "checkout-cancel"
)

func parseScenario(value string) (scenarioKind, error) {
	kind := scenarioKind(strings.TrimSpace(value))
	switch kind {
	case scenarioBrowse, scenarioCheckout, scenarioCheckoutCancel:
		return kind, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// session — общее состояние прогона, разделяемое воркерами.
type session struct {
	client *resty.Client
	opts   options
	runID  string
	rec    *recorder
}

func newSession(opts options, runID string, rec *recorder) *session {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "storefront-loadtest/"+version.GetVersion())
	return &session{client: client, opts: opts, runID: runID, rec: rec}
}

// play выполняет сценарий номер n и записывает его итог как операцию scenario.
func (s *session) play(ctx context.Context, n int) error {
	started := time.Now()
	var err error
	switch s.opts.Scenario {
	case scenarioBrowse:
		err = s.browse(ctx)
	default:
		err = s.checkout(ctx, n)
	}

	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	s.rec.observe(opScenario, time.Since(started), outcome, err == nil)
	return err
}

func (s *session) browse(ctx context.Context) error {
	if err := s.send("ListProducts", s.request(ctx), http.MethodGet, "/api/products"); err != nil {
		return err
	}
	req := s.request(ctx).SetBody(map[string]any{"product_id": s.opts.ProductID, "quantity": s.opts.Quantity})
	return s.send("StockCheck", req, http.MethodPost, "/api/stock/check")
}

type checkoutResult struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

func (s *session) checkout(ctx context.Context, n int) error {
	customer := fmt.Sprintf("%s-%s-%d", s.opts.CustomerPrefix, s.runID, n)

	var created checkoutResult
	req := s.request(ctx).
		SetHeader(headerCustomerID, customer).
		SetHeader(headerIdempotencyKey, fmt.Sprintf("lt-checkout-%s-%d", s.runID, n)).
		SetBody(s.checkoutBody(customer)).
		SetResult(&created)
	if err := s.send("Checkout", req, http.MethodPost, "/api/checkout"); err != nil {
		return err
	}
	if created.OrderID == "" {
		return errors.New("checkout response has no order id")
	}

	if s.opts.Scenario != scenarioCheckoutCancel || !cancels(n, s.opts.CancelPercent) {
		return nil
	}
	cancel := s.request(ctx).SetHeader(headerCustomerID, customer)
	return s.send("CancelOrder", cancel, http.MethodPost, "/api/orders/"+created.OrderID+"/cancel")
}

func (s *session) checkoutBody(customer string) map[string]any {
	return map[string]any{
		"items": []map[string]any{{
			"product_id": s.opts.ProductID,
			"quantity":   s.opts.Quantity,
			"unit_price": s.opts.UnitPrice.StringFixed(2),
		}},
		"delivery": domain.Delivery{
			Name:       "Load Test",
			Email:      customer + "@loadtest.local",
			Phone:      "+55 11 90000-0000",
			Street:     "Rua do Teste",
			Number:     "1",
			City:       "São Paulo",
			State:      "SP",
			PostalCode: "01000-000",
		},
		"coupon_code": s.opts.CouponCode,
	}
}

func (s *session) request(ctx context.Context) *resty.Request {
	return s.client.R().SetContext(ctx)
}

// send выполняет запрос и записывает его как операцию op; ответ вне 2xx
// считается ошибкой.
func (s *session) send(op string, req *resty.Request, method, path string) error {
	started := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(started)
	if err != nil {
		s.rec.observe(op, elapsed, outcomeNetwork, false)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.rec.observe(op, elapsed, strconv.Itoa(resp.StatusCode()), resp.IsSuccess())
	if !resp.IsSuccess() {
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// cancels распределяет отмены равномерно: из каждой сотни сценариев
// отменяются первые percent.
func cancels(n, percent int) bool {
	return n%100 < percent
}
