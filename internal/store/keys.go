package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// KeyStore persists surface key to session id mappings.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a key store using the given database.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

// Get returns the session id mapped to key.
func (k *KeyStore) Get(ctx context.Context, key string) (string, bool, error) {
	var id string
	err := k.db.sql.QueryRowContext(ctx, k.db.rebind(
		`SELECT session_id FROM session_keys WHERE key = ?`), key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading session key: %w", err)
	}
	return id, true, nil
}

// Set maps key to sessionID, replacing any previous mapping.
func (k *KeyStore) Set(ctx context.Context, key, sessionID string) error {
	_, err := k.db.sql.ExecContext(ctx, k.db.rebind(
		`INSERT INTO session_keys (key, session_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
		   session_id = excluded.session_id,
		   updated_at = excluded.updated_at`),
		key, sessionID, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("writing session key: %w", err)
	}
	return nil
}
