package repomanager

import (
	"context"
	"database/sql"

	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/server/repositories/blobs"
	"github.com/sealvault/sealvault/internal/server/repositories/downloads"
	"github.com/sealvault/sealvault/internal/server/repositories/files"
	"github.com/sealvault/sealvault/internal/server/repositories/shares"
	"github.com/sealvault/sealvault/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run the same repository code inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Blobs(db dbx.DBTX) blobs.Repository
	Files(db dbx.DBTX) files.Repository
	Shares(db dbx.DBTX) shares.Repository
	Downloads(db dbx.DBTX) downloads.Repository
}
