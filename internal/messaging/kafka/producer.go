package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// ProducerConfig — подключение и надёжность записи. Пустые поля
// заменяются значениями по умолчанию.
type ProducerConfig struct {
	Brokers     []string
	ClientID    string
	Compression string
	MaxRetries  int
}

var compressionCodecs = map[string]sarama.CompressionCodec{
	"none":   sarama.CompressionNone,
	"gzip":   sarama.CompressionGZIP,
	"snappy": sarama.CompressionSnappy,
	"lz4":    sarama.CompressionLZ4,
	"zstd":   sarama.CompressionZSTD,
}

// Sarama собирает конфиг идемпотентного producer: запись подтверждается
// всеми ISR, в полёте не больше одного запроса на брокер.
func (c ProducerConfig) Sarama() (*sarama.Config, error) {
	clientID := strings.TrimSpace(c.ClientID)
	if clientID == "" {
		clientID = "storefront"
	}
	codecName := strings.ToLower(strings.TrimSpace(c.Compression))
	if codecName == "" {
		codecName = "snappy"
	}
	codec, ok := compressionCodecs[codecName]
	if !ok {
		return nil, fmt.Errorf("unsupported kafka compression %q", c.Compression)
	}
	retries := c.MaxRetries
	if retries <= 0 {
		retries = 5
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = clientID + "-" + version.GetVersion()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = retries
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = codec
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg, nil
}

// Producer пишет сообщения в Kafka синхронно.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

func NewProducer(cfg ProducerConfig, logger *log.Entry) (*Producer, error) {
	saramaCfg, err := cfg.Sarama()
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFrom(producer, logger), nil
}

// NewProducerFrom оборачивает готовый SyncProducer, в тестах mocks.SyncProducer.
func NewProducerFrom(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: producer, logger: logger, now: time.Now}
}

// Message — запись для отправки.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Delivery — куда брокер положил запись.
type Delivery struct {
	Partition int32
	Offset    int64
}

// Send отправляет запись и ждёт подтверждения брокера.
func (p *Producer) Send(ctx context.Context, msg Message) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	entry := p.logger.WithFields(log.Fields{"topic": msg.Topic, "key": msg.Key})
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(msg.Value),
		Headers:   recordHeaders(msg.Headers),
		Timestamp: p.now(),
	})
	if err != nil {
		entry.WithError(err).Error("kafka write failed")
		return Delivery{}, fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka write acknowledged")
	return Delivery{Partition: partition, Offset: offset}, nil
}

// PublishEvent кодирует event в JSON и отправляет в topic.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event any, headers map[string]string) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}
	_, err = p.Send(ctx, Message{Topic: topic, Key: key, Value: value, Headers: headers})
	return err
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// recordHeaders упорядочивает заголовки по имени.
func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]sarama.RecordHeader, len(names))
	for i, name := range names {
		out[i] = sarama.RecordHeader{Key: []byte(name), Value: []byte(headers[name])}
	}
	return out
}
