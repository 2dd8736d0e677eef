package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func migrationFiles(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[migrationsDir+"/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestReadMigrations_SortsAndChecksums(t *testing.T) {
	t.Parallel()

	migrations, err := readMigrations(migrationFiles(map[string]string{
		"0002_more.up.sql":   "CREATE TABLE b (id INT);",
		"0002_more.down.sql": "DROP TABLE b;",
		"0001_init.up.sql":   "  CREATE TABLE a (id INT);\n",
		"0001_init.down.sql": "DROP TABLE a;",
	}))
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	require.Equal(t, int64(1), migrations[0].Version)
	require.Equal(t, "init", migrations[0].Name)
	require.Equal(t, "CREATE TABLE a (id INT);", migrations[0].UpSQL)
	require.Equal(t, "0002_more", migrations[1].String())

	require.Len(t, migrations[0].Checksum, 64)
	require.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)

	again, err := readMigrations(migrationFiles(map[string]string{
		"0001_init.up.sql":   "CREATE TABLE a (id INT);",
		"0001_init.down.sql": "DROP TABLE IF EXISTS a;",
	}))
	require.NoError(t, err)
	require.Equal(t, migrations[0].Checksum, again[0].Checksum, "checksum covers only the up body")
}

func TestReadMigrations_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		files map[string]string
		want  string
	}{
		"missing down": {
			files: map[string]string{"0001_init.up.sql": "SELECT 1;"},
			want:  "both up and down",
		},
		"bad file name": {
			files: map[string]string{"not_a_migration.sql": "SELECT 1;"},
			want:  "invalid migration file name",
		},
		"empty body": {
			files: map[string]string{"0001_init.up.sql": "  \n", "0001_init.down.sql": "SELECT 1;"},
			want:  "is empty",
		},
		"name mismatch": {
			files: map[string]string{"0001_init.up.sql": "SELECT 1;", "0001_other.down.sql": "SELECT 1;"},
			want:  "two names",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := readMigrations(migrationFiles(tc.files))
			require.ErrorContains(t, err, tc.want)
		})
	}

	_, err := readMigrations(fstest.MapFS{})
	require.Error(t, err)
}

func TestDriftedVersions(t *testing.T) {
	t.Parallel()

	embedded := []migration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "bbb"},
		{Version: 3, Checksum: "ccc"},
	}
	applied := map[int64]appliedMigration{
		1: {checksum: "aaa"},
		2: {checksum: "changed"},
		3: {checksum: ""},
	}
	require.Equal(t, []int64{2}, driftedVersions(embedded, applied))
	require.Empty(t, driftedVersions(embedded, map[int64]appliedMigration{}))
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := readMigrations(migrationsFS)
	require.NoError(t, err)

	names := make([]string, 0, len(migrations))
	for _, m := range migrations {
		names = append(names, m.String())
	}
	require.Equal(t, []string{"0001_catalog_coupons", "0002_orders", "0003_outbox_timeline_idempotency"}, names)
	require.Contains(t, migrations[1].UpSQL, "coupon_uses")
	require.Contains(t, migrations[2].UpSQL, "locked_until")
	require.Contains(t, migrations[2].UpSQL, "payment_id")
}
