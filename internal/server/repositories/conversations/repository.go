// Package conversations declares the repository contract for two-party
// conversation threads.
package conversations

import (
	"context"

	"github.com/nkrylov/cipherchat/internal/models"
)

type Repository interface {
	// FindOrCreate returns the conversation between the two users, creating
	// it if absent. The pair is stored in canonical order so (a, b) and
	// (b, a) map to the same row.
	FindOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error)

	// Get returns a conversation by id, or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Conversation, error)
}
