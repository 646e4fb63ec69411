package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store/sqlite/migrations"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "advantage.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestStoreContract(t *testing.T) {
	store, _ := openTestStore(t)
	storetest.Run(t, store)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	store, path := openTestStore(t)

	require.NoError(t, store.Set(ctx, "table-7", advantage.Adversaries, 6))
	require.NoError(t, store.SetVisibility(ctx, "table-7", true))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(ctx, "table-7", advantage.Adversaries)
	require.NoError(t, err)
	assert.Equal(t, 6, v)
	shown, err := reopened.Visibility(ctx, "table-7")
	require.NoError(t, err)
	assert.True(t, shown)
}

func TestMigrationsAppliedOnce(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, applyMigrations(ctx, store.sqlDB, migrations.FS, "."))

	var count int
	require.NoError(t, store.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUpdatedAtUsesClock(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	fixed := time.Date(2024, 5, 4, 18, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	require.NoError(t, store.Set(ctx, "clock", advantage.Allies, 2))

	var updated int64
	require.NoError(t, store.sqlDB.QueryRowContext(ctx,
		`SELECT updated_at FROM session_counters WHERE session_id = ? AND kind = ?`,
		"clock", "allies").Scan(&updated))
	assert.Equal(t, fixed.UnixMilli(), updated)
}

func TestUpSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	up := upSection(content)
	assert.Contains(t, up, "CREATE TABLE a")
	assert.NotContains(t, up, "DROP TABLE")

	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}
