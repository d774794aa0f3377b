package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openfroyo/rbkit/pkg/engine"
)

// ItemStore is an engine.StorageProvider. Persistent items live in the
// items table; the others live in memory for the lifetime of the ItemStore.
// A key is held in exactly one of the two places.
type ItemStore struct {
	engine.BaseStorageProvider

	db *sql.DB

	mu      sync.RWMutex
	session map[string]string
}

// GetItem returns the value stored under key.
func (s *ItemStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	v, ok := s.session[key]
	s.mu.RUnlock()
	if ok {
		return v, true, nil
	}

	err := s.db.QueryRowContext(ctx, `SELECT value FROM items WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get item %s: %w", key, err)
	}
	return v, true, nil
}

// SetItem stores value under key, moving the key between session and
// database when its persistence changes.
func (s *ItemStore) SetItem(ctx context.Context, key, value string, persistent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !persistent {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to set item %s: %w", key, err)
		}
		s.session[key] = value
		return nil
	}

	query := `
		INSERT INTO items (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set item %s: %w", key, err)
	}
	delete(s.session, key)
	return nil
}

// RemoveItem deletes key wherever it is held.
func (s *ItemStore) RemoveItem(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.session, key)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove item %s: %w", key, err)
	}
	return nil
}

// IsItemPersistent reports whether key is stored in the database. Missing
// keys are not persistent.
func (s *ItemStore) IsItemPersistent(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check item %s: %w", key, err)
	}
	return n > 0, nil
}
