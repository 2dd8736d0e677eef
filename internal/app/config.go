package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/gateway/mercadopago"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	envPrefix      = "STOREFRONT"
	envPostgresDSN = "STOREFRONT_POSTGRES_DSN"
	configFile     = "storefront.yaml"
)

// Config — настройки сервиса. Источники по возрастанию приоритета:
// значения по умолчанию, storefront.yaml, переменные STOREFRONT_*, флаги.
type Config struct {
	HTTPAddr    string `default:":8080" usage:"public HTTP API listen address" flag:"http-addr"`
	MetricsAddr string `default:":9090" usage:"metrics and health listen address" flag:"metrics-addr"`
	LogLevel    string `default:"info" usage:"logrus level" flag:"log-level"`
	// AdminToken включает ручную корректировку остатков; пустой — маршрут выключен.
	AdminToken string `usage:"token for /api/admin routes" flag:"admin-token"`

	Storage     StorageConfig
	Outbox      OutboxConfig
	Idempotency IdempotencyConfig
	Kafka       KafkaConfig
	Shop        ShopConfig
	MercadoPago MercadoPagoConfig
}

type StorageConfig struct {
	Driver                  string        `default:"memory" usage:"memory or postgres"`
	PostgresDSN             string        `usage:"PostgreSQL DSN"`
	PostgresAutoMigrate     bool          `default:"true" usage:"apply migrations on start"`
	PostgresMaxConns        int           `default:"25" usage:"postgres connection pool size"`
	PostgresConnMaxLifetime time.Duration `default:"30m" usage:"recycle postgres connections after this long"`
	// SeedDemo наполняет in-memory каталог демонстрационными товарами.
	SeedDemo bool `default:"true" usage:"seed demo catalog for memory driver"`
}

type OutboxConfig struct {
	PollInterval  time.Duration `default:"1s"`
	BatchSize     int           `default:"100"`
	MaxAttempts   int           `default:"3"`
	RetryDelay    time.Duration `default:"50ms"`
	MaxRetryDelay time.Duration `default:"5s"`
}

type IdempotencyConfig struct {
	TTL              time.Duration `default:"24h"`
	CleanupInterval  time.Duration `default:"10m"`
	CleanupBatchSize int           `default:"500"`
}

type KafkaConfig struct {
	// Без Brokers outbox не публикуется.
	Brokers     []string `usage:"comma separated kafka brokers"`
	Topic       string   `default:"storefront.order.events"`
	DLQTopic    string   `default:"storefront.dlq"`
	ClientID    string   `default:"storefront"`
	Compression string   `default:"snappy" usage:"none, gzip, snappy, lz4 or zstd"`
	MaxRetries  int      `default:"5"`
}

// ShopConfig держит суммы строками: aconfig не знает decimal.Decimal.
type ShopConfig struct {
	FreeShippingThreshold string `default:"100.00"`
	ShippingFee           string `default:"15.00"`
	Currency              string `default:"BRL"`
}

type MercadoPagoConfig struct {
	BaseURL string `default:"https://api.mercadopago.com"`
	// Без AccessToken используется FakeGateway.
	AccessToken     string `usage:"Mercado Pago access token"`
	NotificationURL string `usage:"public URL of /api/webhooks/mercadopago"`
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	Sandbox         bool
	Timeout         time.Duration `default:"10s"`
	FakeCheckoutURL string        `default:"http://localhost:8080/fake-checkout"`
}

// DefaultConfig возвращает значения по умолчанию без чтения окружения.
func DefaultConfig() Config {
	cfg, err := loadConfig(aconfig.Config{SkipFiles: true, SkipEnv: true, SkipFlags: true})
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// LoadConfig читает конфигурацию из всех источников и проверяет её.
func LoadConfig(args []string) (Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix:        envPrefix,
		AllowUnknownEnvs: true,
		Files:            []string{configFile, "/etc/storefront/" + configFile},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
		Args: args,
	})
}

func loadConfig(acfg aconfig.Config) (Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if !acfg.SkipEnv {
		cfg.applySharedEnv()
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySharedEnv подхватывает переменные, общие с cmd/migrate и cmd/dlq-replay.
func (c *Config) applySharedEnv() {
	if c.Storage.PostgresDSN == "" {
		c.Storage.PostgresDSN = os.Getenv(envPostgresDSN)
	}
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, b := range c.Kafka.Brokers {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				brokers = append(brokers, part)
			}
		}
	}
	c.Kafka.Brokers = brokers
	c.Shop.Currency = strings.ToUpper(strings.TrimSpace(c.Shop.Currency))
}

// Validate отклоняет несогласованные значения.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		errs = append(errs, errors.New("metrics addr is required"))
	}
	if c.HTTPAddr != "" && c.HTTPAddr == c.MetricsAddr {
		errs = append(errs, errors.New("http and metrics addr must differ"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.Storage.Driver))
	}

	if c.Outbox.BatchSize <= 0 || c.Outbox.MaxAttempts <= 0 || c.Outbox.PollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval, batch size and max attempts must be positive"))
	}
	if c.Idempotency.TTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == c.Kafka.DLQTopic {
		errs = append(errs, errors.New("kafka topic and dlq topic must differ"))
	}

	if _, err := c.ShopSettings(); err != nil {
		errs = append(errs, err)
	}
	if c.MercadoPago.AccessToken != "" && c.MercadoPago.NotificationURL == "" {
		errs = append(errs, errors.New("mercadopago notification url is required with an access token"))
	}
	return errors.Join(errs...)
}

// ShopSettings переводит секцию shop в настройки оформления заказа.
func (c Config) ShopSettings() (checkout.Settings, error) {
	threshold, err := decimal.NewFromString(c.Shop.FreeShippingThreshold)
	if err != nil || threshold.IsNegative() {
		return checkout.Settings{}, fmt.Errorf("shop free shipping threshold %q is invalid", c.Shop.FreeShippingThreshold)
	}
	fee, err := decimal.NewFromString(c.Shop.ShippingFee)
	if err != nil || fee.IsNegative() {
		return checkout.Settings{}, fmt.Errorf("shop shipping fee %q is invalid", c.Shop.ShippingFee)
	}
	if len(c.Shop.Currency) != 3 {
		return checkout.Settings{}, fmt.Errorf("shop currency %q is invalid", c.Shop.Currency)
	}
	return checkout.Settings{FreeShippingThreshold: threshold, ShippingFee: fee, Currency: c.Shop.Currency}, nil
}

// GatewayConfig — настройки REST-клиента Mercado Pago.
func (c Config) GatewayConfig() mercadopago.Config {
	return mercadopago.Config{
		BaseURL:         c.MercadoPago.BaseURL,
		AccessToken:     c.MercadoPago.AccessToken,
		NotificationURL: c.MercadoPago.NotificationURL,
		SuccessURL:      c.MercadoPago.SuccessURL,
		FailureURL:      c.MercadoPago.FailureURL,
		PendingURL:      c.MercadoPago.PendingURL,
		Sandbox:         c.MercadoPago.Sandbox,
		Timeout:         c.MercadoPago.Timeout,
		Breaker:         mercadopago.DefaultBreakerSettings(),
	}
}
