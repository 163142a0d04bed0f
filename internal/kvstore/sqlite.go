package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const (
	sqlGetValue = `SELECT value FROM kv WHERE key = ?`

	sqlUpsertValue = `INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 value = excluded.value,
		 updated_at = excluded.updated_at`

	sqlDeleteValue = `DELETE FROM kv WHERE key = ?`
)

// staged is an uncommitted change. deleted wins over raw.
type staged struct {
	raw     json.RawMessage
	deleted bool
}

// SQLite is a Store backed by a single-table SQLite database. Staged changes
// live in memory until Save commits them in one transaction.
type SQLite struct {
	db      *sql.DB
	path    string
	logger  *slog.Logger
	nowFunc func() time.Time

	mu      sync.Mutex
	pending map[string]staged
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations. The database uses WAL mode with synchronous=FULL so a committed
// refresh token survives power loss.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), DirPerms); err != nil {
		return nil, fmt.Errorf("kvstore: creating directory for %s: %w", path, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("session database opened", slog.String("path", path))

	return &SQLite{
		db:      db,
		path:    path,
		logger:  logger,
		nowFunc: time.Now,
		pending: make(map[string]staged),
	}, nil
}

// Close releases the database. Unsaved changes are discarded.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := s.lookup(ctx, key)
	if err != nil || !found {
		return false, err
	}

	return decode(key, raw, dst)
}

func (s *SQLite) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.lookup(ctx, key)

	return found, err
}

func (s *SQLite) Set(_ context.Context, key string, value any) error {
	raw, err := encode(key, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending[key] = staged{raw: raw}
	s.mu.Unlock()

	return nil
}

func (s *SQLite) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	s.pending[key] = staged{deleted: true}
	s.mu.Unlock()

	return nil
}

// Save commits every staged change in a single transaction.
func (s *SQLite) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kvstore: beginning transaction: %w", err)
	}

	now := s.nowFunc().Unix()

	for key, change := range s.pending {
		if change.deleted {
			_, err = tx.ExecContext(ctx, sqlDeleteValue, key)
		} else {
			_, err = tx.ExecContext(ctx, sqlUpsertValue, key, string(change.raw), now)
		}

		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("kvstore: writing %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: committing: %w", err)
	}

	s.logger.Debug("session database saved", slog.Int("changes", len(s.pending)))
	clear(s.pending)

	return nil
}

// lookup resolves key against staged changes first, then the database.
func (s *SQLite) lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	change, ok := s.pending[key]
	s.mu.Unlock()

	if ok {
		if change.deleted {
			return nil, false, nil
		}

		return change.raw, true, nil
	}

	var value string

	err := s.db.QueryRowContext(ctx, sqlGetValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("kvstore: reading %q: %w", key, err)
	}

	return json.RawMessage(value), true, nil
}
