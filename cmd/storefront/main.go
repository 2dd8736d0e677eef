// Команда storefront запускает публичный HTTP API магазина вместе с
// фоновыми воркерами и сервером метрик.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := app.LoadConfig(args)
	if err != nil {
		_ = configureLogging(log.InfoLevel.String())
		log.WithError(err).Error("invalid configuration")
		return 2
	}
	if err := configureLogging(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("falling back to info level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entry := log.WithField("version", version.GetVersion())
	entry.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.Storage.Driver,
		"kafka":        len(cfg.Kafka.Brokers) > 0,
		"gateway":      gatewayMode(cfg),
	}).Info("storefront starting")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		entry.WithError(err).Error("storefront stopped with error")
		return 1
	}
	entry.Info("storefront stopped")
	return 0
}

// configureLogging ставит текстовый формат; неизвестный уровень
// заменяется на info.
func configureLogging(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return fmt.Errorf("log level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}

func gatewayMode(cfg app.Config) string {
	if cfg.MercadoPago.AccessToken == "" {
		return "fake"
	}
	if cfg.MercadoPago.Sandbox {
		return "mercadopago-sandbox"
	}
	return "mercadopago"
}
