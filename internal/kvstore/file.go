package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FilePerms restricts store files to owner-only read/write: they hold a
// refresh token.
const FilePerms = 0o600

// DirPerms is used when creating the store's parent directory.
const DirPerms = 0o700

// File is a Store persisted as a single JSON object on disk. Set and Delete
// mutate memory only; Save rewrites the whole file atomically.
type File struct {
	path   string
	logger *slog.Logger
	mem    *Memory

	// saveMu serializes mutations, Save and reload so a reload never lands
	// between a staged change and its dirty mark.
	saveMu  sync.Mutex
	dirtyMu sync.Mutex
	dirty   bool
}

// OpenFile loads the store at path. A missing file yields an empty store; the
// file is created on the first Save.
func OpenFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}

	values, err := readFile(path)
	if err != nil {
		return nil, err
	}

	f := &File{path: path, logger: logger, mem: NewMemory()}
	f.mem.replace(values)

	logger.Debug("session store loaded",
		slog.String("path", path),
		slog.Int("keys", len(values)),
	)

	return f, nil
}

// Path returns the file backing the store.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(ctx context.Context, key string, dst any) (bool, error) {
	return f.mem.Get(ctx, key, dst)
}

func (f *File) Has(ctx context.Context, key string) (bool, error) {
	return f.mem.Has(ctx, key)
}

func (f *File) Set(ctx context.Context, key string, value any) error {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	if err := f.mem.Set(ctx, key, value); err != nil {
		return err
	}

	f.markDirty(true)

	return nil
}

func (f *File) Delete(ctx context.Context, key string) error {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	if err := f.mem.Delete(ctx, key); err != nil {
		return err
	}

	f.markDirty(true)

	return nil
}

// Save writes the store to disk atomically (write-to-temp + fsync + rename)
// with 0600 permissions. Never logs values.
func (f *File) Save(_ context.Context) error {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	data, err := json.MarshalIndent(f.mem.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: encoding %s: %w", f.path, err)
	}

	if err := writeAtomic(f.path, data); err != nil {
		return err
	}

	f.markDirty(false)

	return nil
}

// Watch reloads the store whenever another process rewrites the file. It
// blocks until ctx is canceled. Reloads are skipped while this process holds
// unsaved changes so a Save is never silently discarded.
func (f *File) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("kvstore: creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic saves replace the file, which drops a
	// watch placed on the file itself.
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("kvstore: creating directory %s: %w", dir, err)
	}

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("kvstore: watching %s: %w", dir, err)
	}

	name := filepath.Clean(f.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != name {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) {
				f.reload()
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			f.logger.Warn("session store watcher error", slog.String("error", werr.Error()))
		}
	}
}

// reload replaces the in-memory values with the file's current contents.
func (f *File) reload() {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	if f.isDirty() {
		f.logger.Warn("session store changed on disk with unsaved local changes, keeping local state",
			slog.String("path", f.path),
		)

		return
	}

	values, err := readFile(f.path)
	if err != nil {
		f.logger.Warn("session store reload failed",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)

		return
	}

	f.mem.replace(values)
	f.logger.Debug("session store reloaded", slog.String("path", f.path))
}

func (f *File) markDirty(v bool) {
	f.dirtyMu.Lock()
	f.dirty = v
	f.dirtyMu.Unlock()
}

func (f *File) isDirty() bool {
	f.dirtyMu.Lock()
	defer f.dirtyMu.Unlock()

	return f.dirty
}

// readFile parses the JSON object at path. A missing or empty file is an
// empty store.
func readFile(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}

	if err != nil {
		return nil, fmt.Errorf("kvstore: reading %s: %w", path, err)
	}

	values := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("kvstore: decoding %s: %w", path, err)
	}

	return values, nil
}

// writeAtomic writes data to path through a temp file in the same directory,
// which guarantees rename(2) stays on one filesystem.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("kvstore: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("kvstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave a truncated store behind
	// the final name.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kvstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("kvstore: renaming: %w", err)
	}

	success = true

	return nil
}
