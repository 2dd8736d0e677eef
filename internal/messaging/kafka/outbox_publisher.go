package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OutboxPublisher публикует события заказов из outbox в виде Envelope.
type OutboxPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт публикатор; пустой topic заменяется TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxPublisher{producer: producer, topic: topic, now: time.Now}
}

// Topic возвращает целевой topic.
func (p *OutboxPublisher) Topic() string {
	return p.topic
}

func (p *OutboxPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	envelope := NewEnvelope(event, p.now())
	return p.producer.PublishEvent(ctx, p.topic, envelope.Key(), envelope, eventHeaders(event))
}

// DLQPublisher кладёт в dead-letter topic DLQRecord с исходным событием
// и текстом ошибки. Replayer читает те же записи обратно.
type DLQPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewDLQPublisher создаёт публикатор DLQ; пустой topic заменяется TopicDeadLetterQueue.
func NewDLQPublisher(producer *Producer, topic string) *DLQPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DLQPublisher{producer: producer, topic: topic, now: time.Now}
}

// Topic возвращает dead-letter topic.
func (p *DLQPublisher) Topic() string {
	return p.topic
}

func (p *DLQPublisher) PublishDeadLetter(ctx context.Context, event domain.OutboxMessage, cause error) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}
	record := NewDLQRecord(event, cause, p.now())
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	return p.producer.PublishEvent(ctx, p.topic, key, record, eventHeaders(event))
}

func eventHeaders(event domain.OutboxMessage) map[string]string {
	return map[string]string{
		HeaderEventType: event.EventType,
		HeaderOutboxID:  event.ID,
	}
}

var (
	_ domain.OutboxPublisher     = (*OutboxPublisher)(nil)
	_ domain.DeadLetterPublisher = (*DLQPublisher)(nil)
)
