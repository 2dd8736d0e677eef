package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// IdempotencyRepository держит ответы checkout в памяти процесса.
type IdempotencyRepository struct {
	mu   sync.Mutex
	keys map[string]domain.IdempotencyRecord
	now  func() time.Time
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		keys: make(map[string]domain.IdempotencyRecord),
		now:  time.Now,
	}
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	if err := checkReservation(key, requestHash); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if held, ok := r.keys[key]; ok && !held.Expired(now) {
		held.Reply = held.Reply.Clone()
		if !held.SameRequest(requestHash) {
			return held, domain.ErrIdempotencyKeyReused
		}
		return held, domain.ErrIdempotencyReplay
	}

	if expiresAt.IsZero() {
		expiresAt = now.Add(domain.DefaultIdempotencyTTL)
	}
	rec := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		State:       domain.IdempotencyPending,
		ExpiresAt:   expiresAt.UTC(),
		CreatedAt:   now,
	}
	r.keys[key] = rec
	return rec, nil
}

func (r *IdempotencyRepository) Lookup(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.keys[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyNotFound
	}
	rec.Reply = rec.Reply.Clone()
	return rec, nil
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, reply domain.StoredReply) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.keys[key]
	if !ok {
		return domain.ErrIdempotencyNotFound
	}
	rec.Complete(reply, r.now().UTC())
	r.keys[key] = rec
	return nil
}

// Purge удаляет до limit ключей, истёкших к before, от самых старых.
func (r *IdempotencyRepository) Purge(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if before.IsZero() {
		before = r.now()
	}
	var expired []domain.IdempotencyRecord
	for _, rec := range r.keys {
		if rec.Expired(before) {
			expired = append(expired, rec)
		}
	}
	slices.SortFunc(expired, func(a, b domain.IdempotencyRecord) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, rec := range expired {
		delete(r.keys, rec.Key)
	}
	return len(expired), nil
}

func checkReservation(key, requestHash string) error {
	switch {
	case key == "":
		return domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.ErrIdempotencyHashRequired
	}
	return nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
