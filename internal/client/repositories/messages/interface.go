// Package messages provides the sqlite-backed local message cache
// repository. Rows are structurally identical to remote messages and are
// scoped to one conversation.
package messages

import (
	"context"
	"time"

	"github.com/nkrylov/cipherchat/internal/models"
)

// Repository is the storage surface the cache service builds on. All
// methods operate on whatever DBTX the repository was constructed with, so
// delete+insert pairs can share a transaction.
type Repository interface {
	// DeleteByConversation removes every cached row for a conversation and
	// returns the number of rows removed.
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)

	// BulkInsert stores the given rows.
	BulkInsert(ctx context.Context, msgs []models.Message) error

	// Recent returns up to limit rows for the conversation, newest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// DeleteOlderThan removes rows created before the cutoff, across all
	// conversations, and returns the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// CountAll returns the total number of cached rows.
	CountAll(ctx context.Context) (int64, error)

	// CountByConversation returns the cached row count for one conversation.
	CountByConversation(ctx context.Context, conversationID string) (int64, error)

	// DeleteAll clears the whole cache and returns the number removed.
	DeleteAll(ctx context.Context) (int64, error)

	// PayloadStats returns the summed encoded payload length
	// (ciphertext + nonce) and the row count, for storage estimation.
	PayloadStats(ctx context.Context) (bytes int64, rows int64, err error)
}
