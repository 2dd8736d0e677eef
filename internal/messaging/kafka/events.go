package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers
const (
	HeaderEventType   = "x-event-type"
	HeaderOutboxID    = "x-outbox-id"
	HeaderReplayCount = "x-replay-count"
	HeaderReplayedAt  = "x-replayed-at"
)

// Envelope — формат события заказа в TopicOrderEvents.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, now time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   now.UTC(),
	}
}

// Key — ключ партиционирования: события одного заказа идут в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DLQRecord — запись, которую outbox worker кладёт в TopicDeadLetterQueue
// после исчерпания попыток публикации.
type DLQRecord struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

// NewDLQRecord фиксирует событие, не доставленное в TopicOrderEvents.
func NewDLQRecord(msg domain.OutboxMessage, cause error, now time.Time) DLQRecord {
	rec := DLQRecord{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		DLQPublishedAt: now.UTC().Format(time.RFC3339Nano),
	}
	if cause != nil {
		rec.PublishError = cause.Error()
	}
	return rec
}

// ParseEnvelope разбирает событие из TopicOrderEvents.
func ParseEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return Envelope{}, fmt.Errorf("envelope without event_type")
	}
	return env, nil
}

// ParseDLQRecord разбирает запись DLQ; исходный payload обязателен.
func ParseDLQRecord(value []byte) (DLQRecord, error) {
	var rec DLQRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return DLQRecord{}, fmt.Errorf("failed to unmarshal dlq record: %w", err)
	}
	if len(rec.Payload) == 0 || string(rec.Payload) == "null" {
		return DLQRecord{}, fmt.Errorf("dlq record %q has no original payload", rec.OutboxID)
	}
	return rec, nil
}

// Envelope восстанавливает исходное событие для повторной публикации.
func (r DLQRecord) Envelope(now time.Time) Envelope {
	return Envelope{
		ID:            r.OutboxID,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		EventType:     r.EventType,
		Payload:       r.Payload,
		PublishedAt:   now.UTC(),
	}
}
