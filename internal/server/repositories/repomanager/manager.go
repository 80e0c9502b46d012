package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/vaultbox/internal/dbx"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/audit"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/files"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/folders"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction, so services can choose per operation.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Folders(db dbx.DBTX) folders.Repository
	Audit(db dbx.DBTX) audit.Repository
}
