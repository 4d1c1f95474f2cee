package keys

import (
	"context"
	"database/sql"
	"encoding/json"
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

func (r *PostgresRepository) Deactivate(ctx context.Context, userID string) error {
	query := `
		UPDATE user_encryption_keys SET active = FALSE
		WHERE user_id = $1 AND active
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, record *models.KeyRecord) error {
	jwk, err := json.Marshal(record.PublicKeyJWK)
	if err != nil {
		return fmt.Errorf("encoding jwk: %w", err)
	}

	query := `
		INSERT INTO user_encryption_keys (user_id, public_key_jwk, salt_base64, active)
		VALUES ($1, $2, $3, TRUE)
	`
	if _, err := r.db.ExecContext(ctx, query, record.UserID, jwk, record.SaltBase64); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetActive(ctx context.Context, userID string) (*models.KeyRecord, error) {
	query := `
		SELECT user_id, public_key_jwk, salt_base64, active, created_at
		FROM user_encryption_keys
		WHERE user_id = $1 AND active
	`

	record := &models.KeyRecord{}
	var jwk []byte
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&record.UserID, &jwk, &record.SaltBase64, &record.Active, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(jwk, &record.PublicKeyJWK); err != nil {
		return nil, fmt.Errorf("decoding jwk: %w", err)
	}
	return record, nil
}
