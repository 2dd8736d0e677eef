package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	return logger.WithField("component", "app-test")
}

func newTestApplication(t *testing.T, mutate func(*Config)) *application {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := DefaultConfig()
	cfg.AdminToken = "admin"
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := newApplication(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func serve(a *application, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestNewApplication_SeededCatalogAndCheckout(t *testing.T) {
	a := newTestApplication(t, nil)

	w := serve(a, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Products []struct {
			ID            string `json:"id"`
			Price         string `json:"price"`
			OriginalPrice string `json:"original_price"`
		} `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Products, 4)

	body := `{"items":[{"product_id":"caneca-floral","quantity":2,"unit_price":"49.90"}],` +
		`"delivery":{"name":"Ana","email":"ana@example.com","phone":"11999990000","street":"Rua A","city":"São Paulo","state":"SP","postal_code":"01000-000"},` +
		`"coupon_code":"BEMVINDO10"}`
	w = serve(a, http.MethodPost, "/api/checkout", body, map[string]string{"X-Customer-ID": "cust-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// 99.80 - 9.98 = 89.82; подытог не больше 100, доставка платная.
	require.Equal(t, "99.80", resp["subtotal"])
	require.Equal(t, "9.98", resp["discount"])
	require.Equal(t, "15.00", resp["shipping_fee"])
	require.Equal(t, "104.82", resp["amount_due"])
	require.True(t, strings.HasPrefix(resp["redirect_url"], a.cfg.MercadoPago.FakeCheckoutURL))

	w = serve(a, http.MethodGet, "/api/orders/"+resp["order_id"], "", map[string]string{"X-Customer-ID": "cust-1"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNewApplication_AdminRouteFollowsToken(t *testing.T) {
	a := newTestApplication(t, func(cfg *Config) { cfg.AdminToken = "" })
	w := serve(a, http.MethodPost, "/api/admin/products/ecobag/stock", `{"action":"reserve","quantity":1}`, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	a = newTestApplication(t, nil)
	w = serve(a, http.MethodPost, "/api/admin/products/ecobag/stock", `{"action":"reserve","quantity":1}`,
		map[string]string{"X-Admin-Token": "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"product_id":"ecobag","stock":49}`, w.Body.String())
}

func TestNewApplication_HealthChecks(t *testing.T) {
	a := newTestApplication(t, nil)
	resp := a.health.Run(context.Background())
	require.Equal(t, healthcheck.StatusHealthy, resp.Status)
	require.Contains(t, resp.Checks, "storage")
	require.NotContains(t, resp.Checks, "payment_gateway")

	a = newTestApplication(t, func(cfg *Config) {
		cfg.MercadoPago.AccessToken = "TEST-token"
		cfg.MercadoPago.NotificationURL = "https://shop.example.com/api/webhooks/mercadopago"
	})
	resp = a.health.Run(context.Background())
	require.Contains(t, resp.Checks, "payment_gateway")
	require.Equal(t, healthcheck.StatusHealthy, resp.Checks["payment_gateway"].Status)
}

func TestBackgroundWorkers(t *testing.T) {
	a := newTestApplication(t, nil)
	require.Len(t, a.workers, 1, "without kafka only the idempotency cleanup runs")

	producer := mocks.NewSyncProducer(t, nil)
	t.Cleanup(func() { _ = producer.Close() })
	a.publishers = newOutboxPublishers(kafka.NewProducerFrom(producer, testLogger()), a.cfg.Kafka)
	require.Equal(t, "storefront.order.events", a.publishers.events.Topic())
	require.Equal(t, "storefront.dlq", a.publishers.dlq.Topic())
	require.Len(t, a.backgroundWorkers(), 2)
}

func TestInitKafka_DisabledWithoutBrokers(t *testing.T) {
	require.Nil(t, initKafka(KafkaConfig{}, testLogger()))
	closeKafka(nil, testLogger())
}

func TestInitRepositories(t *testing.T) {
	ctx := context.Background()

	repos, err := initRepositories(ctx, Config{Storage: StorageConfig{Driver: StorageDriverMemory}}, testLogger())
	require.NoError(t, err)
	require.NoError(t, repos.ping(ctx))
	products, err := repos.products.List(ctx, domainFilterAll())
	require.NoError(t, err)
	require.Empty(t, products, "seed is opt-in")

	_, err = initRepositories(ctx, Config{Storage: StorageConfig{Driver: StorageDriverPostgres}}, testLogger())
	require.Error(t, err)

	_, err = initRepositories(ctx, Config{Storage: StorageConfig{Driver: "sqlite"}}, testLogger())
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_StopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "256.0.0.1:bad"
	cfg.MetricsAddr = "127.0.0.1:0"
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	lisAddr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := healthcheck.NewHandler(version.GetVersion())
	startMetricsServer(ctx, lisAddr, testLogger(), health)

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + lisAddr + "/livez")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 3*time.Second, 20*time.Millisecond)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, path := range []string{"/metrics", "/healthz", "/readyz"} {
		r, err := http.Get("http://" + lisAddr + path)
		require.NoError(t, err)
		_ = r.Body.Close()
		require.Equal(t, http.StatusOK, r.StatusCode, path)
	}
}
