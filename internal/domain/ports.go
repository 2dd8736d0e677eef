package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// DeadLetterPublisher откладывает событие, которое не удалось опубликовать,
// вместе с причиной последней ошибки.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, event OutboxMessage, cause error) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит ответы на запросы с Idempotency-Key.
// Reserve занимает свободный или истёкший ключ; занятый ключ возвращается
// вместе с ErrIdempotencyReplay или ErrIdempotencyKeyReused.
type IdempotencyRepository interface {
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) (IdempotencyRecord, error)
	Lookup(ctx context.Context, key string) (IdempotencyRecord, error)
	Complete(ctx context.Context, key string, reply StoredReply) error
	Purge(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// Типы событий заказа в outbox и timeline.
const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStockShortage = "OrderStockShortage"
	EventPaymentRequested   = "PaymentRequested"
	EventPaymentFailed      = "PaymentRequestFailed"
	EventPaymentNotified    = "PaymentNotified"
)
