package files

import (
	"context"

	"github.com/sealvault/sealvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.UserFile) error

	GetByID(ctx context.Context, id string) (*models.UserFile, error)

	// SetTrashed toggles the soft-delete mark. The owner must match; a
	// missing or foreign row surfaces as common.ErrNotFound.
	SetTrashed(ctx context.Context, id, ownerID string, trashed bool) error

	// Delete removes the row and returns the deleted record, so the caller
	// can release the blob reference it held.
	Delete(ctx context.Context, id, ownerID string) (*models.UserFile, error)

	// UsageBytes sums referenced blob sizes over the owner's non-trashed
	// files. Logical charging: dedup does not reduce an owner's bill.
	UsageBytes(ctx context.Context, ownerID string) (int64, error)
}
