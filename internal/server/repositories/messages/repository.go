// Package messages declares the repository contract for the authoritative
// message store.
package messages

import (
	"context"

	"github.com/nkrylov/cipherchat/internal/models"
)

type Repository interface {
	// Insert stores a new message, assigning the next sequence number in its
	// conversation, and returns the full row.
	Insert(ctx context.Context, m *models.Message) (*models.Message, error)

	// Get returns a message by id, or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Message, error)

	// UpdateContent replaces a message's ciphertext and flags it edited.
	UpdateContent(ctx context.Context, id, ciphertext, nonce string) (*models.Message, error)

	// MarkDeleted soft-deletes a message; the row stays for ordering.
	MarkDeleted(ctx context.Context, id string) (*models.Message, error)

	// ListRecent returns up to limit newest messages of a conversation,
	// newest first.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}
