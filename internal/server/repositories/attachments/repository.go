// Package attachments declares the repository contract for encrypted blob
// metadata.
package attachments

import (
	"context"

	"github.com/nkrylov/cipherchat/internal/models"
)

type Repository interface {
	// Create stores a new attachment record and returns it with the
	// generated id.
	Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error)

	// Get returns an attachment by id, or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Attachment, error)
}
