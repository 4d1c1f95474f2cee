// Package store opens the client's local sqlite database and wires up the
// repositories over it.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nkrylov/cipherchat/internal/client/migrations"
	"github.com/nkrylov/cipherchat/internal/client/repositories/keys"
	"github.com/nkrylov/cipherchat/internal/client/repositories/metadata"
	"github.com/nkrylov/cipherchat/internal/client/repositories/outbox"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories bundles the local collections: private keys, sync metadata
// and the outbound queue. The message cache gets the raw DB handle instead
// because replace-all needs transactions.
type Repositories struct {
	DB       *sql.DB
	Keys     keys.Repository
	Metadata metadata.Repository
	Outbox   outbox.Repository
}

// RunMigrations applies the embedded sqlite schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the local database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	return &Repositories{
		DB:       db,
		Keys:     keys.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		Outbox:   outbox.NewSQLiteRepository(db),
	}, nil
}
