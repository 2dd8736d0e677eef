package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FakeGateway — конфигурируемая замена платёжного провайдера для локального
// запуска и тестов. Платежи задаются через SetPayment.
type FakeGateway struct {
	mu sync.Mutex

	baseURL  string
	payments map[string]domain.PaymentView
	requests []domain.PreferenceRequest

	createErr error
	fetchErr  error

	createCalls int
	fetchCalls  int
}

// NewFakeGateway возвращает заглушку с успешным сценарием по умолчанию.
func NewFakeGateway(baseURL string) *FakeGateway {
	if baseURL == "" {
		baseURL = "http://localhost:8080/fake-checkout"
	}
	return &FakeGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		payments: make(map[string]domain.PaymentView),
	}
}

// FailCreate заставляет CreatePreference возвращать err (nil отключает).
func (g *FakeGateway) FailCreate(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createErr = err
}

// FailFetch заставляет FetchPayment возвращать err (nil отключает).
func (g *FakeGateway) FailFetch(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchErr = err
}

// SetPayment регистрирует платёж, который вернёт FetchPayment.
func (g *FakeGateway) SetPayment(view domain.PaymentView) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[view.ID] = view
}

// CreatePreference запоминает запрос и возвращает фиктивную платёжную форму.
func (g *FakeGateway) CreatePreference(_ context.Context, req domain.PreferenceRequest) (domain.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls++
	if g.createErr != nil {
		return domain.Preference{}, g.createErr
	}
	g.requests = append(g.requests, clonePreferenceRequest(req))

	id := "fake-pref-" + uuid.NewString()
	return domain.Preference{
		ID:          id,
		RedirectURL: fmt.Sprintf("%s?pref_id=%s", g.baseURL, id),
	}, nil
}

// FetchPayment возвращает ранее зарегистрированный платёж.
func (g *FakeGateway) FetchPayment(_ context.Context, paymentID string) (domain.PaymentView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.fetchCalls++
	if g.fetchErr != nil {
		return domain.PaymentView{}, g.fetchErr
	}
	view, ok := g.payments[paymentID]
	if !ok {
		return domain.PaymentView{}, fmt.Errorf("fake gateway: payment %s not found", paymentID)
	}
	return view, nil
}

// Requests возвращает копию принятых запросов на создание формы.
func (g *FakeGateway) Requests() []domain.PreferenceRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.PreferenceRequest, 0, len(g.requests))
	for _, req := range g.requests {
		out = append(out, clonePreferenceRequest(req))
	}
	return out
}

// Calls возвращает число вызовов CreatePreference и FetchPayment.
func (g *FakeGateway) Calls() (create, fetch int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls, g.fetchCalls
}

func clonePreferenceRequest(req domain.PreferenceRequest) domain.PreferenceRequest {
	req.Items = append([]domain.PreferenceItem(nil), req.Items...)
	return req
}

var _ domain.PaymentGateway = (*FakeGateway)(nil)
