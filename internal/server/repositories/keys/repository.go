// Package keys declares the repository contract for users' published
// encryption keys.
package keys

import (
	"context"

	"github.com/nkrylov/cipherchat/internal/models"
)

type Repository interface {
	// Deactivate clears the active flag on all of a user's key records.
	Deactivate(ctx context.Context, userID string) error

	// Create inserts a new active key record.
	Create(ctx context.Context, record *models.KeyRecord) error

	// GetActive returns the user's active key record, or
	// common.ErrorNotFound when the user has none.
	GetActive(ctx context.Context, userID string) (*models.KeyRecord, error)
}
