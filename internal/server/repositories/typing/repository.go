// Package typing declares the repository contract for ephemeral typing
// indicators.
package typing

import (
	"context"
	"time"

	"github.com/nkrylov/cipherchat/internal/models"
)

type Repository interface {
	// Upsert inserts or refreshes the (conversation, user) indicator and
	// returns the row plus whether it was newly inserted.
	Upsert(ctx context.Context, conversationID, userID string, isTyping bool) (*models.TypingIndicator, bool, error)

	// Delete removes the indicator, returning the deleted row or
	// common.ErrorNotFound when there was none.
	Delete(ctx context.Context, conversationID, userID string) (*models.TypingIndicator, error)

	// DeleteStale removes indicators not refreshed since the cutoff and
	// returns the deleted rows so their removal can be broadcast.
	DeleteStale(ctx context.Context, cutoff time.Time) ([]models.TypingIndicator, error)
}
