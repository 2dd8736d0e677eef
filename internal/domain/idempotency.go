package domain

import (
	"net/http"
	"time"
)

// DefaultIdempotencyTTL — срок жизни Idempotency-Key, если он не задан в конфиге.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyState — стадия обработки запроса под ключом.
type IdempotencyState string

const (
	IdempotencyPending   IdempotencyState = "pending"
	IdempotencySucceeded IdempotencyState = "succeeded"
	IdempotencyFailed    IdempotencyState = "failed"
)

func (s IdempotencyState) Valid() bool {
	switch s {
	case IdempotencyPending, IdempotencySucceeded, IdempotencyFailed:
		return true
	}
	return false
}

// StoredReply — HTTP-ответ, который повторяется клиенту для того же ключа.
type StoredReply struct {
	Status int
	Body   []byte
}

// State выводит итог по коду ответа: 4xx и 5xx тоже кэшируются, но как failed.
func (r StoredReply) State() IdempotencyState {
	if r.Status >= http.StatusBadRequest {
		return IdempotencyFailed
	}
	return IdempotencySucceeded
}

// Clone копирует тело, чтобы хранилище не делило срез с вызывающим.
func (r StoredReply) Clone() StoredReply {
	r.Body = append([]byte(nil), r.Body...)
	return r
}

// IdempotencyRecord — ключ клиента и то, чем закончился запрос под ним.
// RequestHash покрывает операцию, покупателя и тело запроса.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	State       IdempotencyState
	Reply       StoredReply
	ExpiresAt   time.Time
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Expired — ключ освободился. Граница срока уже считается истёкшей.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

func (r IdempotencyRecord) SameRequest(requestHash string) bool {
	return r.RequestHash == requestHash
}

// Replayable — ответ сохранён полностью и его можно отдать повторно.
func (r IdempotencyRecord) Replayable() bool {
	return r.State != IdempotencyPending && r.Reply.Status != 0 && len(r.Reply.Body) > 0
}

// Complete фиксирует ответ и выводит из него итоговое состояние.
func (r *IdempotencyRecord) Complete(reply StoredReply, at time.Time) {
	r.Reply = reply.Clone()
	r.State = reply.State()
	r.CompletedAt = at
}
