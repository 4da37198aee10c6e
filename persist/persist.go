// Package persist defines the snapshot storage used to make the in-memory stores durable.
//
// Every store (care blocks, event logs, pending transitions, household) keeps its state in
// memory and writes a JSON snapshot under its own key after each mutation. Snapshots are read
// once at startup. Backends only need to move opaque bytes by key.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned by Get when no snapshot exists under the key
	ErrNotFound = errors.New("snapshot not found")
	// ErrInvalidKey is returned when a key cannot be stored by the backend
	ErrInvalidKey = errors.New("invalid snapshot key")
)

// SaveTimeout bounds a single snapshot write triggered by a mutation.
const SaveTimeout = 5 * time.Second

// Store is a key/value snapshot backend.
type Store interface {
	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the bytes stored under key.
	Put(ctx context.Context, key string, data []byte) error
}

// LoadJSON decodes the snapshot under key into v. It reports false when no snapshot exists.
func LoadJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode snapshot %q: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %q: %w", key, err)
	}
	if err := s.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write snapshot %q: %w", key, err)
	}
	return nil
}

// SaveLogged writes a snapshot on behalf of a mutation. Failures are logged and do not
// affect the in-memory state. A nil store is a no-op.
func SaveLogged(s Store, key string, v any, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), SaveTimeout)
	defer cancel()

	if err := SaveJSON(ctx, s, key, v); err != nil {
		logger.Error("failed to persist snapshot", "key", key, "error", err)
	}
}
