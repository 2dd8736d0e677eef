package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/gateway/mercadopago"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// application — собранный сервис: хранилища, доменные сервисы, HTTP и фоновые воркеры.
type application struct {
	cfg    Config
	logger *log.Entry

	repos      *repositories
	publishers *outboxPublishers
	router     *gin.Engine
	health     *healthcheck.Handler
	workers    []func(ctx context.Context)
}

func newApplication(ctx context.Context, cfg Config, logger *log.Entry) (*application, error) {
	settings, err := cfg.ShopSettings()
	if err != nil {
		return nil, err
	}

	repos, err := initRepositories(ctx, cfg, logger.WithField("component", "storage"))
	if err != nil {
		return nil, err
	}

	orderMetrics := metrics.NewOrderMetrics()
	health := healthcheck.NewHandler(version.GetVersion())
	health.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", repos.ping))

	gateway := newGateway(cfg, health, logger)

	orders := order.NewService(repos.orders, repos.outbox, repos.timeline,
		order.WithLogger(logger.WithField("component", "order-service")),
		order.WithMetrics(orderMetrics),
	)
	payments := payment.NewAdapter(orders, gateway,
		payment.WithLogger(logger.WithField("component", "payment-adapter")),
		payment.WithMetrics(orderMetrics),
		payment.WithCurrency(settings.Currency),
	)
	coupons := coupon.NewEngine(repos.coupons,
		coupon.WithLogger(logger.WithField("component", "coupon-engine")),
		coupon.WithMetrics(orderMetrics),
	)

	handler := httpapi.NewHandler(httpapi.Dependencies{
		Catalog:       catalog.NewService(repos.products, logger.WithField("component", "catalog")),
		Coupons:       coupons,
		Checkout:      checkout.NewService(repos.products, coupons, orders, payments, settings, logger.WithField("component", "checkout"), orderMetrics),
		Orders:        orders,
		Notifications: payments,
		Ledger:        inventory.NewLedger(repos.products, logger.WithField("component", "stock-ledger")),
		Idempotency:   repos.idempotency,
	}, httpapi.Config{
		AdminToken:     cfg.AdminToken,
		IdempotencyTTL: cfg.Idempotency.TTL,
	}, logger.WithField("component", "http-api"), metrics.NewHTTPMetrics(prometheus.DefaultRegisterer))

	a := &application{
		cfg:    cfg,
		logger: logger,
		repos:  repos,
		router: handler.Router(),
		health: health,
	}
	a.publishers = initKafka(cfg.Kafka, logger.WithField("component", "kafka"))
	a.workers = a.backgroundWorkers()
	return a, nil
}

// newGateway выбирает REST-клиент Mercado Pago или FakeGateway без токена.
func newGateway(cfg Config, health *healthcheck.Handler, logger *log.Entry) domain.PaymentGateway {
	if cfg.MercadoPago.AccessToken == "" {
		logger.Warn("mercadopago access token is empty, using fake payment gateway")
		return payment.NewFakeGateway(cfg.MercadoPago.FakeCheckoutURL)
	}

	client := mercadopago.NewClient(cfg.GatewayConfig(),
		metrics.NewGatewayMetrics(prometheus.DefaultRegisterer),
		logger.WithField("component", "mercadopago"))
	// Разомкнутый breaker деградирует сервис, но не снимает готовность:
	// каталог и заказы продолжают работать.
	health.RegisterChecker("payment_gateway", healthcheck.NewDegradableChecker("payment_gateway", client.Check))
	return client
}

func (a *application) backgroundWorkers() []func(ctx context.Context) {
	var workers []func(ctx context.Context)

	if a.publishers != nil {
		w := outbox.NewWorker(a.repos.outbox, a.publishers.events, outbox.Config{
			PollInterval:  a.cfg.Outbox.PollInterval,
			BatchSize:     a.cfg.Outbox.BatchSize,
			MaxAttempts:   a.cfg.Outbox.MaxAttempts,
			RetryDelay:    a.cfg.Outbox.RetryDelay,
			MaxRetryDelay: a.cfg.Outbox.MaxRetryDelay,
		},
			outbox.WithLogger(a.logger.WithField("component", "outbox-worker")),
			outbox.WithDeadLetters(a.publishers.dlq),
			outbox.WithMetrics(metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)),
		)
		workers = append(workers, w.Run)
	}

	sweeper := idempotency.NewSweeper(a.repos.idempotency, idempotency.Config{
		Interval:  a.cfg.Idempotency.CleanupInterval,
		BatchSize: a.cfg.Idempotency.CleanupBatchSize,
	},
		idempotency.WithLogger(a.logger.WithField("component", "idempotency-sweeper")),
		idempotency.WithMetrics(metrics.NewIdempotencyMetrics(prometheus.DefaultRegisterer)),
	)
	return append(workers, sweeper.Run)
}

func (a *application) close() {
	closeKafka(a.publishers, a.logger)
	if err := a.repos.close(); err != nil {
		a.logger.WithError(err).Warn("failed to close storage")
	}
}

// Run собирает сервис и обслуживает HTTP до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var wg sync.WaitGroup
	for _, run := range a.workers {
		wg.Add(1)
		go func(run func(ctx context.Context)) {
			defer wg.Done()
			run(workerCtx)
		}(run)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, a.health)
	apiSrv := &http.Server{Handler: a.router, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает отдельный listener для /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, health *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
