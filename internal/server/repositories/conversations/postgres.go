package conversations

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

func (r *PostgresRepository) FindOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userB < userA {
		userA, userB = userB, userA
	}

	query := `
		INSERT INTO conversations (user_a, user_b)
		VALUES ($1, $2)
		ON CONFLICT (user_a, user_b) DO UPDATE SET user_a = EXCLUDED.user_a
		RETURNING id, user_a, user_b, created_at
	`
	conv := &models.Conversation{}
	err := r.db.QueryRowContext(ctx, query, userA, userB).
		Scan(&conv.ID, &conv.UserA, &conv.UserB, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return conv, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	query := `
		SELECT id, user_a, user_b, created_at
		FROM conversations
		WHERE id = $1
	`
	conv := &models.Conversation{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&conv.ID, &conv.UserA, &conv.UserB, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return conv, nil
}
