package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// outboxPublishers — публикаторы событий и DLQ поверх одного producer.
type outboxPublishers struct {
	producer *kafka.Producer
	events   *kafka.OutboxPublisher
	dlq      *kafka.DLQPublisher
}

// initKafka создаёт producer, если заданы брокеры. Ошибка подключения не
// останавливает сервис: события копятся в outbox до следующего запуска.
func initKafka(cfg KafkaConfig, logger *log.Entry) *outboxPublishers {
	if len(cfg.Brokers) == 0 {
		logger.Info("kafka brokers are not configured, outbox publishing is disabled")
		return nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:     cfg.Brokers,
		ClientID:    cfg.ClientID,
		Compression: cfg.Compression,
		MaxRetries:  cfg.MaxRetries,
	}, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}
	logger.WithFields(log.Fields{
		"brokers":   cfg.Brokers,
		"topic":     cfg.Topic,
		"dlq_topic": cfg.DLQTopic,
	}).Info("kafka producer initialized")

	return newOutboxPublishers(producer, cfg)
}

func newOutboxPublishers(producer *kafka.Producer, cfg KafkaConfig) *outboxPublishers {
	return &outboxPublishers{
		producer: producer,
		events:   kafka.NewOutboxPublisher(producer, cfg.Topic),
		dlq:      kafka.NewDLQPublisher(producer, cfg.DLQTopic),
	}
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(p *outboxPublishers, logger *log.Entry) {
	if p == nil || p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
