package shares

import (
	"context"

	"github.com/sealvault/sealvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, share *models.ShareLink) error

	GetByToken(ctx context.Context, token string) (*models.ShareLink, error)

	GetByID(ctx context.Context, id string) (*models.ShareLink, error)

	// TryConsumeDownload atomically increments download_count, but only while
	// the share is neither exhausted nor expired at commit time. Reports
	// whether the increment happened. This is the single statement that keeps
	// download_count <= max_downloads under concurrency.
	TryConsumeDownload(ctx context.Context, id string) (bool, error)

	Delete(ctx context.Context, id string) error

	// DeleteByUserFile revokes every share of a file (cascading revoke on
	// permanent deletion).
	DeleteByUserFile(ctx context.Context, userFileID string) error
}
