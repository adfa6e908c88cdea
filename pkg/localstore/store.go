// Package localstore is the agent's small on-disk key/value cache: active
// calls that must survive a restart and one-off UI flags.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/msniranjan18/chhavinity/pkg/models"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("localstore: key not found")

const (
	activeCallPrefix = "activeCall_"
	installPromptKey = "installPromptDismissed"
)

func activeCallKey(contactID string) string {
	return activeCallPrefix + contactID
}

type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the SQLite file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys returns every key starting with prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SaveActiveCall persists call under activeCall_<contactID>.
func (s *Store) SaveActiveCall(ctx context.Context, contactID string, call models.ActiveCall) error {
	data, err := json.Marshal(call)
	if err != nil {
		return err
	}
	return s.Set(ctx, activeCallKey(contactID), string(data))
}

func (s *Store) DeleteActiveCall(ctx context.Context, contactID string) error {
	return s.Delete(ctx, activeCallKey(contactID))
}

// ActiveCalls returns every persisted call by contact id. Entries that no
// longer decode are dropped from the store.
func (s *Store) ActiveCalls(ctx context.Context) (map[string]models.ActiveCall, error) {
	keys, err := s.Keys(ctx, activeCallPrefix)
	if err != nil {
		return nil, err
	}

	calls := make(map[string]models.ActiveCall, len(keys))
	for _, key := range keys {
		raw, err := s.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var call models.ActiveCall
		if err := json.Unmarshal([]byte(raw), &call); err != nil {
			s.Delete(ctx, key)
			continue
		}
		calls[strings.TrimPrefix(key, activeCallPrefix)] = call
	}
	return calls, nil
}

func (s *Store) InstallPromptDismissed(ctx context.Context) (bool, error) {
	v, err := s.Get(ctx, installPromptKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (s *Store) DismissInstallPrompt(ctx context.Context) error {
	return s.Set(ctx, installPromptKey, "true")
}
