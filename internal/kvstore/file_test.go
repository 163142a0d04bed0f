package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, KeyRefreshToken, "rt"))
	require.NoError(t, f.Set(ctx, KeyUseCloud, true))
	require.NoError(t, f.Save(ctx))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	reopened, err := OpenFile(path, nil)
	require.NoError(t, err)

	var rt string
	found, err := reopened.Get(ctx, KeyRefreshToken, &rt)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "rt", rt)

	var cloud bool
	found, err = reopened.Get(ctx, KeyUseCloud, &cloud)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, cloud)
}

func TestFile_UnsavedChangesNotDurable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, KeyRefreshToken, "rt"))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	reopened, err := OpenFile(path, nil)
	require.NoError(t, err)

	has, err := reopened.Has(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{corrupt`), 0o600))

	_, err := OpenFile(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestFile_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	f, err := OpenFile(path, nil)
	require.NoError(t, err)

	has, err := f.Has(context.Background(), KeyUserData)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFile_NoTempFilesLeftBehind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f, err := OpenFile(filepath.Join(dir, "session.json"), nil)
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, f.Set(ctx, KeyRefreshToken, i))
		require.NoError(t, f.Save(ctx))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "session.json", entries[0].Name())
}

func TestFile_WatchReloadsExternalWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "session.json")

	f, err := OpenFile(path, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.Watch(ctx) }()

	// Another process (e.g. the desktop shell) rewrites the store.
	other, err := OpenFile(path, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		if setErr := other.Set(ctx, KeyRefreshToken, "from-other-process"); setErr != nil {
			return false
		}

		if saveErr := other.Save(ctx); saveErr != nil {
			return false
		}

		var rt string
		found, getErr := f.Get(ctx, KeyRefreshToken, &rt)

		return getErr == nil && found && rt == "from-other-process"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestFile_WatchKeepsUnsavedLocalChanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, KeyRefreshToken, "local"))

	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_token":"disk"}`), 0o600))
	f.reload()

	var rt string
	_, err = f.Get(ctx, KeyRefreshToken, &rt)
	require.NoError(t, err)
	assert.Equal(t, "local", rt)
}

func TestFile_ReloadNeverDropsStagedChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_token":"disk"}`), 0o600))

	f, err := OpenFile(path, nil)
	require.NoError(t, err)

	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			select {
			case <-stop:
				return
			default:
				f.reload()
			}
		}
	}()

	for i := range 200 {
		want := fmt.Sprintf("local-%d", i)
		require.NoError(t, f.Set(ctx, KeyRefreshToken, want))

		var rt string
		_, err := f.Get(ctx, KeyRefreshToken, &rt)
		require.NoError(t, err)
		require.Equal(t, want, rt)

		// Back to clean so the next reload reads the disk again.
		f.markDirty(false)
	}

	close(stop)
	<-done
}
