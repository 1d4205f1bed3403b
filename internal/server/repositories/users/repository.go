package users

import (
	"context"

	"github.com/sealvault/sealvault/internal/server/models"
)

type Repository interface {
	// Ensure creates the owner row on first contact, with the given default
	// quota. An existing row keeps its quota but refreshes the username.
	Ensure(ctx context.Context, id, username string, defaultQuotaBytes int64) error

	// GetForUpdate loads the owner row with a row lock, serializing quota
	// reservations for that owner. Must be called inside a transaction.
	GetForUpdate(ctx context.Context, id string) (*models.User, error)

	Get(ctx context.Context, id string) (*models.User, error)
}
