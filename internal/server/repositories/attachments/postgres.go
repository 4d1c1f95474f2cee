package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error) {
	query := `
		INSERT INTO attachments (conversation_id, uploader_id, file_name, size_bytes, storage_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ConversationID, a.SenderID, a.FileName, a.Size, a.StorageKey).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Attachment, error) {
	query := `
		SELECT id, conversation_id, uploader_id, file_name, size_bytes, storage_key, created_at
		FROM attachments
		WHERE id = $1
	`
	a := &models.Attachment{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.ConversationID, &a.SenderID, &a.FileName, &a.Size, &a.StorageKey, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}
