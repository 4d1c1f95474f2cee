package services

import (
	"context"
	"database/sql"

	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/models"
	"github.com/nkrylov/cipherchat/internal/server/repositories/repomanager"
)

// KeyService manages users' published encryption keys. Publishing a new key
// deactivates the old record rather than overwriting it, in one transaction,
// so a user always has at most one active key and never zero mid-rotation.
type KeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewKeyService(db *sql.DB, m repomanager.RepositoryManager) *KeyService {
	return &KeyService{db: db, repomanager: m}
}

// Publish stores a new active key record for the user.
func (s *KeyService) Publish(ctx context.Context, record *models.KeyRecord) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Keys(tx)
		if err := repo.Deactivate(ctx, record.UserID); err != nil {
			return err
		}
		return repo.Create(ctx, record)
	})
}

// GetActive returns a user's active key record.
func (s *KeyService) GetActive(ctx context.Context, userID string) (*models.KeyRecord, error) {
	return s.repomanager.Keys(s.db).GetActive(ctx, userID)
}
