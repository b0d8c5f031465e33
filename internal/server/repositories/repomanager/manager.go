package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/threads"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Threads(db dbx.DBTX) threads.Repository
	Messages(db dbx.DBTX) messages.Repository
}
