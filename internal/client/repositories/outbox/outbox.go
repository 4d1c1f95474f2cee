// Package outbox queues encrypted messages composed while offline. Rows are
// deleted once the send succeeds.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/models"
)

type Repository interface {
	Enqueue(ctx context.Context, m models.Message) error
	All(ctx context.Context) ([]models.Message, error)
	Delete(ctx context.Context, id string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, m models.Message) error {
	query := `INSERT INTO outbox (id, conversation_id, encrypted_content, initialization_vector, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.ConversationID, m.EncryptedContent, m.InitializationVector, m.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) All(ctx context.Context) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, encrypted_content, initialization_vector, created_at
		 FROM outbox ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox: %w", err)
	}
	defer rows.Close()

	var result []models.Message
	for rows.Next() {
		var (
			m         models.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.EncryptedContent, &m.InitializationVector, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete outbox row: %w", err)
	}
	return nil
}
