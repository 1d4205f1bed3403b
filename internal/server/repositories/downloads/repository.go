package downloads

import (
	"context"

	"github.com/sealvault/sealvault/internal/server/models"
)

// Repository is the append-only download log. Entries are never mutated or
// deleted by this core.
type Repository interface {
	Append(ctx context.Context, entry *models.DownloadLogEntry) error

	// ListByUserFile returns the newest entries for a file, for the owner's
	// analytics view.
	ListByUserFile(ctx context.Context, userFileID string, limit int) ([]*models.DownloadLogEntry, error)
}
