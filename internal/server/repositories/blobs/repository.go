package blobs

import (
	"context"
	"time"

	"github.com/sealvault/sealvault/internal/server/models"
)

type Repository interface {
	// IncrementRef bumps the reference count of an existing blob and clears
	// any orphan mark. Returns common.ErrNotFound when no blob exists for
	// the hash.
	IncrementRef(ctx context.Context, contentHash string) (int64, error)

	// Create inserts a fresh blob row with ref_count = 1. A concurrent
	// creator winning the unique constraint surfaces as common.ErrConflict.
	Create(ctx context.Context, blob *models.ContentBlob) error

	Get(ctx context.Context, contentHash string) (*models.ContentBlob, error)

	// DecrementRef releases one reference; the row is stamped orphaned when
	// the count reaches zero. Returns the new count.
	DecrementRef(ctx context.Context, contentHash string) (int64, error)

	// SelectOrphaned lists deletion candidates: zero-reference blobs whose
	// orphan mark is older than cutoff.
	SelectOrphaned(ctx context.Context, cutoff time.Time, limit int) ([]*models.ContentBlob, error)

	// DeleteIfOrphaned removes the row only if ref_count is still zero,
	// reporting whether a row was deleted. This is the sweeper's final
	// re-check against a concurrent resurrection.
	DeleteIfOrphaned(ctx context.Context, contentHash string) (bool, error)
}
