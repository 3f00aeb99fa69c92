package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fieldsync/backend"
)

// Metadata stores key/value stamps such as the last pull time per kind
type Metadata struct {
	db *backend.Database
}

func NewMetadata(db *backend.Database) *Metadata {
	return &Metadata{db: db}
}

// Get returns the value for key and whether it exists
func (m *Metadata) Get(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := m.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ? LIMIT 1", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return value.String, value.Valid && value.String != "", nil
}

// Set stores value under key
func (m *Metadata) Set(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, backend.Now())
	if err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", key, err)
	}
	return nil
}

// LastPullKey returns the metadata key stamped after a successful pull of kind
func LastPullKey(kind backend.Kind) string {
	return kind.Table() + "_last_pull"
}
