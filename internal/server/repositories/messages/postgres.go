package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/models"
)

const messageColumns = `id, conversation_id, sender_id, encrypted_content,
	initialization_vector, sequence_number, deleted, edited, edited_at,
	delivered_at, read_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.EncryptedContent,
		&m.InitializationVector, &m.SequenceNumber, &m.Deleted, &m.Edited,
		&m.EditedAt, &m.DeliveredAt, &m.ReadAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// Insert assigns the next per-conversation sequence number inside the
// statement itself. Callers run it under a transaction when they need the
// number to be race-free.
func (r *PostgresRepository) Insert(ctx context.Context, m *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, encrypted_content, initialization_vector, sequence_number)
		VALUES ($1, $2, $3, $4,
			COALESCE((SELECT MAX(sequence_number) + 1 FROM messages WHERE conversation_id = $1), 1))
		RETURNING ` + messageColumns

	return scanMessage(r.db.QueryRowContext(ctx, query,
		m.ConversationID, m.SenderID, m.EncryptedContent, m.InitializationVector))
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return scanMessage(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateContent(ctx context.Context, id, ciphertext, nonce string) (*models.Message, error) {
	query := `
		UPDATE messages
		SET encrypted_content = $2, initialization_vector = $3, edited = TRUE, edited_at = now()
		WHERE id = $1
		RETURNING ` + messageColumns

	return scanMessage(r.db.QueryRowContext(ctx, query, id, ciphertext, nonce))
}

func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string) (*models.Message, error) {
	query := `
		UPDATE messages
		SET deleted = TRUE
		WHERE id = $1
		RETURNING ` + messageColumns

	return scanMessage(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
