package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxRepository_FIFOAndSettle(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}

	payload := []byte(`{"status":"paid"}`)
	generated, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "order-1", EventType: domain.EventOrderStatusChanged, Payload: payload})
	require.NoError(t, err)
	require.NotEmpty(t, generated.ID)
	payload[0] = 'X'

	for _, id := range []string{"m-3", "m-1"} {
		_, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: id, AggregateID: "order-2"})
		require.NoError(t, err)
	}

	batch, err := repo.PullPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, generated.ID, batch[0].ID)
	require.Equal(t, "m-3", batch[1].ID)
	require.JSONEq(t, `{"status":"paid"}`, string(batch[0].Payload))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutboxStats{PendingCount: 3, OldestPendingAt: start.Add(time.Second)}, stats)

	require.NoError(t, repo.MarkSent(ctx, generated.ID))
	require.NoError(t, repo.MarkFailed(ctx, "m-3"))
	require.ErrorIs(t, repo.MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
	require.Equal(t, start.Add(3*time.Second), stats.OldestPendingAt)

	batch, err = repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, "m-1", batch[0].ID)

	require.Len(t, repo.Messages(""), 3)
	require.Len(t, repo.Messages("order-2"), 2)
}

func TestOutboxRepository_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	_, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: "dup"})
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, domain.OutboxMessage{ID: "dup"})
	require.ErrorIs(t, err, domain.ErrDuplicateID)
	require.Len(t, repo.Messages(""), 1)
}
