package typing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Upsert(ctx context.Context, conversationID, userID string, isTyping bool) (*models.TypingIndicator, bool, error) {
	query := `
		INSERT INTO typing_indicators (conversation_id, user_id, is_typing, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET is_typing = EXCLUDED.is_typing, updated_at = now()
		RETURNING id, conversation_id, user_id, is_typing, updated_at, (xmax = 0) AS inserted
	`
	ind := &models.TypingIndicator{}
	var inserted bool
	err := r.db.QueryRowContext(ctx, query, conversationID, userID, isTyping).
		Scan(&ind.ID, &ind.ConversationID, &ind.UserID, &ind.IsTyping, &ind.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	return ind, inserted, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, conversationID, userID string) (*models.TypingIndicator, error) {
	query := `
		DELETE FROM typing_indicators
		WHERE conversation_id = $1 AND user_id = $2
		RETURNING id, conversation_id, user_id, is_typing, updated_at
	`
	ind := &models.TypingIndicator{}
	err := r.db.QueryRowContext(ctx, query, conversationID, userID).
		Scan(&ind.ID, &ind.ConversationID, &ind.UserID, &ind.IsTyping, &ind.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ind, nil
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, cutoff time.Time) ([]models.TypingIndicator, error) {
	query := `
		DELETE FROM typing_indicators
		WHERE updated_at < $1
		RETURNING id, conversation_id, user_id, is_typing, updated_at
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.TypingIndicator
	for rows.Next() {
		var ind models.TypingIndicator
		if err := rows.Scan(&ind.ID, &ind.ConversationID, &ind.UserID, &ind.IsTyping, &ind.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
