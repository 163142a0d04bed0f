package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userRecord struct {
	Email string `json:"email"`
	Salt  string `json:"salt"`
}

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()

	file, err := OpenFile(filepath.Join(dir, "session.json"), nil)
	require.NoError(t, err)

	db, err := OpenSQLite(context.Background(), filepath.Join(dir, "session.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": db,
	}
}

func TestStore_Contract(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var s string
			found, err := store.Get(ctx, KeyRefreshToken, &s)
			require.NoError(t, err)
			assert.False(t, found)

			has, err := store.Has(ctx, KeyRefreshToken)
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, store.Set(ctx, KeyRefreshToken, "rt-1"))

			found, err = store.Get(ctx, KeyRefreshToken, &s)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "rt-1", s)

			// Last write wins.
			require.NoError(t, store.Set(ctx, KeyRefreshToken, "rt-2"))
			require.NoError(t, store.Save(ctx))

			found, err = store.Get(ctx, KeyRefreshToken, &s)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "rt-2", s)

			require.NoError(t, store.Set(ctx, KeyUserData, userRecord{Email: "a@b.com", Salt: "xyz"}))

			var u userRecord
			found, err = store.Get(ctx, KeyUserData, &u)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, userRecord{Email: "a@b.com", Salt: "xyz"}, u)

			require.NoError(t, store.Delete(ctx, KeyRefreshToken))
			has, err = store.Has(ctx, KeyRefreshToken)
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestStore_NullIsPresentButEmpty(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, KeyUseCloud, nil))
			require.NoError(t, store.Save(ctx))

			has, err := store.Has(ctx, KeyUseCloud)
			require.NoError(t, err)
			assert.True(t, has)

			b := true
			found, err := store.Get(ctx, KeyUseCloud, &b)
			require.NoError(t, err)
			assert.False(t, found)
			assert.True(t, b, "dst must be untouched for null")
		})
	}
}

func TestStore_DecodeTypeMismatch(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, KeyUseCloud, "not-a-bool"))

			var b bool
			_, err := store.Get(ctx, KeyUseCloud, &b)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "decoding")
		})
	}
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, BackendFile, filepath.Join(dir, "a.json"), nil)
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	s, err = Open(ctx, BackendSQLite, filepath.Join(dir, "a.db"), nil)
	require.NoError(t, err)
	require.IsType(t, &SQLite{}, s)
	require.NoError(t, s.(*SQLite).Close())

	_, err = Open(ctx, "etcd", filepath.Join(dir, "x"), nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
