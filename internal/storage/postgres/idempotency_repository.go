package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const idempotencyColumns = `key, request_hash, state, reply_status, reply_body, expires_at, created_at, completed_at`

// IdempotencyRepository хранит ответы checkout в таблице idempotency_keys.
type IdempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewIdempotencyRepository(store *Store) *IdempotencyRepository {
	return &IdempotencyRepository{db: store.DB(), now: time.Now}
}

// Reserve занимает ключ одним INSERT. Истёкшая строка перезаписывается,
// живая остаётся как есть, и тогда RETURNING не вернёт ничего.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyHashRequired
	}

	now := r.now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(domain.DefaultIdempotencyTTL)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, state, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    state = EXCLUDED.state,
		    reply_status = NULL,
		    reply_body = NULL,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    completed_at = NULL
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
		RETURNING `+idempotencyColumns,
		key, requestHash, string(domain.IdempotencyPending), expiresAt.UTC(), now)

	rec, err := scanIdempotencyRecord(row)
	switch {
	case err == nil:
		return rec, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key %s: %w", key, err)
	}

	held, err := r.Lookup(ctx, key)
	if err != nil {
		// Строку успели удалить между запросами; для клиента это всё равно повтор.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyReplay
	}
	if !held.SameRequest(requestHash) {
		return held, domain.ErrIdempotencyKeyReused
	}
	return held, domain.ErrIdempotencyReplay
}

func (r *IdempotencyRepository) Lookup(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rec, err := scanIdempotencyRecord(r.db.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyNotFound
	case err != nil:
		return domain.IdempotencyRecord{}, fmt.Errorf("lookup idempotency key %s: %w", key, err)
	}
	return rec, nil
}

// Complete сохраняет ответ; состояние выводится из его кода.
func (r *IdempotencyRepository) Complete(ctx context.Context, key string, reply domain.StoredReply) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET state = $2, reply_status = $3, reply_body = $4, completed_at = $5
		WHERE key = $1
	`, key, string(reply.State()), reply.Status, reply.Body, r.now().UTC())
	if err != nil {
		return fmt.Errorf("complete idempotency key %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("complete idempotency key %s: %w", key, err)
	} else if n == 0 {
		return domain.ErrIdempotencyNotFound
	}
	return nil
}

// Purge удаляет до limit ключей, истёкших к before, от самых старых.
// При limit <= 0 в LIMIT уходит NULL, то есть без ограничения.
func (r *IdempotencyRepository) Purge(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before.UTC(), sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return int(n), nil
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		rec         domain.IdempotencyRecord
		state       string
		replyStatus sql.NullInt32
		completedAt sql.NullTime
	)
	err := row.Scan(&rec.Key, &rec.RequestHash, &state, &replyStatus, &rec.Reply.Body,
		&rec.ExpiresAt, &rec.CreatedAt, &completedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	rec.State = domain.IdempotencyState(state)
	if !rec.State.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown idempotency state %q", state)
	}
	rec.Reply.Status = int(replyStatus.Int32)
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	if completedAt.Valid {
		rec.CompletedAt = completedAt.Time.UTC()
	}
	return rec, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
