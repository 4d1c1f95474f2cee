// Package keys persists private-key material in the local sqlite store,
// keyed by user id. One active record per user per device; writes overwrite
// wholesale. Key bytes stored here never leave the device.
package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nkrylov/cipherchat/internal/dbx"
)

// Repository stores and loads private scalars.
type Repository interface {
	// Save upserts the private key for a user; last write wins.
	Save(ctx context.Context, userID string, privateKey []byte) error

	// Get returns the stored key, or (nil, nil) when absent. A missing key
	// is an expected state (first run on a device), not an error.
	Get(ctx context.Context, userID string) ([]byte, error)

	// Delete removes the record for a user, if any.
	Delete(ctx context.Context, userID string) error
}

// SQLiteRepository implements Repository over a DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, userID string, privateKey []byte) error {
	query := `INSERT INTO private_keys (user_id, private_key, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			private_key = excluded.private_key,
			created_at = excluded.created_at`
	if _, err := r.db.ExecContext(ctx, query, userID, privateKey, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, userID string) ([]byte, error) {
	var key []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT private_key FROM private_keys WHERE user_id = ?`, userID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	return key, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM private_keys WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete private key: %w", err)
	}
	return nil
}
