package messages

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx). Timestamps are stored as unix milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func (r *SQLiteRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cached_messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cached messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) BulkInsert(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	const cols = 12
	placeholders := make([]string, 0, len(msgs))
	args := make([]any, 0, len(msgs)*cols)

	for _, m := range msgs {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			m.ID, m.ConversationID, m.SenderID,
			m.EncryptedContent, m.InitializationVector, m.SequenceNumber,
			m.Deleted, m.Edited,
			toNullMillis(m.EditedAt), toNullMillis(m.DeliveredAt), toNullMillis(m.ReadAt),
			toMillis(m.CreatedAt),
		)
	}

	query := `INSERT INTO cached_messages
		(id, conversation_id, sender_id, encrypted_content, initialization_vector,
		 sequence_number, deleted, edited, edited_at, delivered_at, read_at, created_at)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert cached messages: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender_id, encrypted_content, initialization_vector,
			sequence_number, deleted, edited, edited_at, delivered_at, read_at, created_at
		FROM cached_messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, sequence_number DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select cached messages: %w", err)
	}
	defer rows.Close()

	var result []models.Message
	for rows.Next() {
		var (
			m                           models.Message
			editedAt, deliveredAt, read sql.NullInt64
			createdAt                   int64
		)
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID,
			&m.EncryptedContent, &m.InitializationVector, &m.SequenceNumber,
			&m.Deleted, &m.Edited,
			&editedAt, &deliveredAt, &read, &createdAt,
		); err != nil {
			return nil, err
		}
		m.EditedAt = fromNullMillis(editedAt)
		m.DeliveredAt = fromNullMillis(deliveredAt)
		m.ReadAt = fromNullMillis(read)
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cached_messages WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune cached messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_messages`).Scan(&n)
	return n, err
}

func (r *SQLiteRepository) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cached_messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	return n, err
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cached_messages`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) PayloadStats(ctx context.Context) (int64, int64, error) {
	var bytes, rows int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(encrypted_content) + LENGTH(initialization_vector)), 0), COUNT(*)
		 FROM cached_messages`).Scan(&bytes, &rows)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read payload stats: %w", err)
	}
	return bytes, rows, nil
}
