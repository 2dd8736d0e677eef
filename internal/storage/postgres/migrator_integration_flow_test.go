package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrator_PostgresUpDownCycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateDown(ctx, 100))
	state, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, MigrationState{Pending: 3}, state)

	require.NoError(t, store.MigrateUp(ctx, 2))
	state, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), state.Version)
	require.Equal(t, 1, state.Pending)

	require.NoError(t, store.MigrateUp(ctx, 0))
	require.NoError(t, store.MigrateUp(ctx, 0), "second up is a no-op")
	state, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, MigrationState{Version: 3, Applied: 3}, state)

	infos, err := store.Migrations(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	for _, info := range infos {
		require.True(t, info.Applied)
		require.False(t, info.Drifted)
		require.False(t, info.AppliedAt.IsZero())
	}

	require.NoError(t, store.MigrateDown(ctx, 0), "zero steps rolls back one")
	state, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), state.Version)

	require.NoError(t, store.MigrateDown(ctx, 5))
	require.NoError(t, store.MigrateDown(ctx, 1), "down on empty schema is a no-op")
	require.NoError(t, store.MigrateUp(ctx, 0))
}

func TestMigrator_PostgresDriftBlocksUp(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))
	t.Cleanup(func() {
		_, _ = store.DB().ExecContext(context.Background(),
			`UPDATE schema_migrations SET checksum = '' WHERE version = 1`)
	})

	_, err := store.DB().ExecContext(ctx, `UPDATE schema_migrations SET checksum = 'edited' WHERE version = 1`)
	require.NoError(t, err)

	state, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, state.Drifted)
	require.ErrorIs(t, store.MigrateUp(ctx, 0), ErrMigrationDrift)
}

func TestMigrator_NilStore(t *testing.T) {
	var store *Store
	ctx := context.Background()

	require.ErrorIs(t, store.MigrateUp(ctx, 0), errStoreNotInitialized)
	require.ErrorIs(t, store.MigrateDown(ctx, 1), errStoreNotInitialized)
	_, err := store.MigrationStatus(ctx)
	require.ErrorIs(t, err, errStoreNotInitialized)
}
