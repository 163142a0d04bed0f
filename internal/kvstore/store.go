// Package kvstore provides the persisted key/value store that holds session
// state across process restarts: the refresh token, the local user record and
// the cloud-mode flag. Values are JSON documents.
//
// Every backend follows the same contract. Set stages a value that Get sees
// immediately; Save makes all staged changes durable at once. A key holding a
// JSON null is present for Has but absent for Get.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Keys used by the session core.
const (
	KeyUserData     = "user_data"
	KeyRefreshToken = "refresh_token"
	KeyUseCloud     = "use_cloud"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("kvstore: unknown backend")

// Store is the get/set/has/save contract consumed by the token broker and
// the custody service.
type Store interface {
	// Get decodes the value stored under key into dst. It returns false,
	// leaving dst untouched, when the key is absent or holds null.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stages value under key. A nil value stores null.
	Set(ctx context.Context, key string, value any) error
	// Has reports whether key is present, including when it holds null.
	Has(ctx context.Context, key string) (bool, error)
	// Delete stages removal of key.
	Delete(ctx context.Context, key string) error
	// Save flushes staged changes to durable storage.
	Save(ctx context.Context) error
}

// Open returns a Store for the named backend rooted at path.
func Open(ctx context.Context, backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendFile, "":
		return OpenFile(path, logger)
	case BackendSQLite:
		return OpenSQLite(ctx, path, logger)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, backend)
	}
}

// encode marshals a value for storage.
func encode(key string, value any) (json.RawMessage, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("kvstore: encoding %q: %w", key, err)
	}

	return data, nil
}

// decode unmarshals raw into dst, reporting false for null.
func decode(key string, raw json.RawMessage, dst any) (bool, error) {
	if isNull(raw) {
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("kvstore: decoding %q: %w", key, err)
	}

	return true, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
