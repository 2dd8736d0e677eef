// Команда dlq-replay перечитывает DLQ и возвращает события заказов
// в основной топик. По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/cristalhq/aconfig"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// config читается из флагов и переменных STOREFRONT_*; брокеры общие
// с сервисом (STOREFRONT_KAFKA_BROKERS).
type config struct {
	Brokers     []string      `flag:"brokers" env:"KAFKA_BROKERS" usage:"comma separated kafka brokers"`
	SourceTopic string        `flag:"source-topic" env:"DLQ_SOURCE_TOPIC" default:"storefront.dlq" usage:"DLQ topic to scan"`
	TargetTopic string        `flag:"target-topic" env:"DLQ_TARGET_TOPIC" default:"storefront.order.events" usage:"topic to replay into"`
	Limit       int           `flag:"limit" env:"DLQ_LIMIT" default:"100" usage:"max messages to scan"`
	Execute     bool          `flag:"execute" env:"DLQ_EXECUTE" default:"false" usage:"publish replayed events; dry-run otherwise"`
	FromNewest  bool          `flag:"from-newest" env:"DLQ_FROM_NEWEST" default:"false" usage:"scan the newest messages first"`
	IdleTimeout time.Duration `flag:"idle-timeout" env:"DLQ_IDLE_TIMEOUT" default:"2s" usage:"stop reading a partition after this idle period"`
	LogLevel    string        `flag:"log-level" env:"LOG_LEVEL" default:"info" usage:"logrus level"`
}

func (c config) replay() kafka.ReplayOptions {
	return kafka.ReplayOptions{
		SourceTopic: c.SourceTopic,
		TargetTopic: c.TargetTopic,
		Limit:       c.Limit,
		Execute:     c.Execute,
		FromNewest:  c.FromNewest,
		IdleTimeout: c.IdleTimeout,
	}
}

func main() {
	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fail("invalid config: %v", err)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string) (config, error) {
	var cfg config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "STOREFRONT",
		AllowUnknownEnvs: true,
		SkipFiles:        true,
		Args:             args,
	})
	if err := loader.Load(); err != nil {
		return config{}, err
	}

	cfg.Brokers = splitBrokers(cfg.Brokers)
	cfg.SourceTopic = strings.TrimSpace(cfg.SourceTopic)
	cfg.TargetTopic = strings.TrimSpace(cfg.TargetTopic)
	return cfg, cfg.validate()
}

func (c config) validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (-brokers or STOREFRONT_KAFKA_BROKERS)"))
	}
	if c.SourceTopic == "" || c.TargetTopic == "" {
		errs = append(errs, errors.New("source and target topics are required"))
	} else if c.SourceTopic == c.TargetTopic {
		errs = append(errs, errors.New("source and target topics must differ"))
	}
	if c.Limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be > 0"))
	}
	return errors.Join(errs...)
}

// splitBrokers принимает и повторённые значения, и списки через запятую.
func splitBrokers(values []string) []string {
	var brokers []string
	for _, value := range values {
		for _, broker := range strings.Split(value, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithField("component", "dlq-replay")

	consumerCfg := sarama.NewConfig()
	consumerCfg.Consumer.Return.Errors = true
	client, err := sarama.NewClient(cfg.Brokers, consumerCfg)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	var producer *kafka.Producer
	if cfg.Execute {
		producer, err = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Brokers, ClientID: "storefront-dlq-replay"}, logger)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
	}

	opts := cfg.replay()
	logger.WithFields(log.Fields{
		"source_topic": opts.SourceTopic,
		"target_topic": opts.TargetTopic,
		"limit":        opts.Limit,
		"execute":      opts.Execute,
	}).Info("starting dlq replay")

	stats, err := kafka.NewReplayer(client, kafka.ConsumerSource{Consumer: consumer}, producer, logger).Run(ctx, opts)
	logger.WithFields(log.Fields{
		"processed": stats.Processed,
		"replayed":  stats.Replayed,
		"skipped":   stats.Skipped,
	}).Info("dlq replay finished")
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
