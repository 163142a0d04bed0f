package kvstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_PersistsOnlySavedChanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	db, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)

	require.NoError(t, db.Set(ctx, KeyRefreshToken, "saved"))
	require.NoError(t, db.Save(ctx))
	require.NoError(t, db.Set(ctx, KeyUseCloud, true))
	require.NoError(t, db.Close())

	reopened, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	var rt string
	found, err := reopened.Get(ctx, KeyRefreshToken, &rt)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "saved", rt)

	has, err := reopened.Has(ctx, KeyUseCloud)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSQLite_StagedDeleteShadowsRow(t *testing.T) {
	ctx := context.Background()

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "session.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Set(ctx, KeyRefreshToken, "rt"))
	require.NoError(t, db.Save(ctx))
	require.NoError(t, db.Delete(ctx, KeyRefreshToken))

	has, err := db.Has(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, db.Save(ctx))

	var count int
	require.NoError(t, db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&count))
	assert.Zero(t, count)
}

func TestSQLite_RecordsUpdateTime(t *testing.T) {
	ctx := context.Background()

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "session.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	db.nowFunc = func() time.Time { return fixed }

	require.NoError(t, db.Set(ctx, KeyUseCloud, false))
	require.NoError(t, db.Save(ctx))

	var updated int64
	require.NoError(t, db.db.QueryRowContext(ctx,
		`SELECT updated_at FROM kv WHERE key = ?`, KeyUseCloud).Scan(&updated))
	assert.Equal(t, fixed.Unix(), updated)
}

func TestSQLite_MigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
