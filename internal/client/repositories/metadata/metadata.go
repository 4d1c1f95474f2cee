// Package metadata is a small key/value store for sync bookkeeping, e.g.
// the last successful sync time per conversation.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nkrylov/cipherchat/internal/dbx"
)

type Repository interface {
	// Get returns the value for key, or "" when absent.
	Get(ctx context.Context, key string) (string, error)

	// Set upserts the value for key.
	Set(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync metadata: %w", err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write sync metadata: %w", err)
	}
	return nil
}
