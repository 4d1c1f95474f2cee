package repomanager

import (
	"context"
	"database/sql"

	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/server/repositories/attachments"
	"github.com/nkrylov/cipherchat/internal/server/repositories/conversations"
	"github.com/nkrylov/cipherchat/internal/server/repositories/keys"
	"github.com/nkrylov/cipherchat/internal/server/repositories/messages"
	"github.com/nkrylov/cipherchat/internal/server/repositories/refreshtokens"
	"github.com/nkrylov/cipherchat/internal/server/repositories/typing"
	"github.com/nkrylov/cipherchat/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Keys(db dbx.DBTX) keys.Repository
	Conversations(db dbx.DBTX) conversations.Repository
	Messages(db dbx.DBTX) messages.Repository
	Typing(db dbx.DBTX) typing.Repository
	Attachments(db dbx.DBTX) attachments.Repository
}
