// Package users declares the server-side repository contract for user
// accounts.
package users

import (
	"context"

	"github.com/nkrylov/cipherchat/internal/server/models"
)

type Repository interface {
	// Create stores a new user and returns it with the generated id.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetUserByLogin looks a user up by username. Implementations return
	// common.ErrorNotFound when the user is absent.
	GetUserByLogin(ctx context.Context, userName string) (*models.User, error)
}
