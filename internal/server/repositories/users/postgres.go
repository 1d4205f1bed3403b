package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/server/models"
)

// PostgresRepository implements the owner registry over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Ensure(ctx context.Context, id, username string, defaultQuotaBytes int64) error {
	query := `
		INSERT INTO users (id, username, quota_limit_bytes)
		VALUES ($1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET username = EXCLUDED.username
	`
	if _, err := r.db.ExecContext(ctx, query, id, username, defaultQuotaBytes); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetForUpdate takes a row lock on the owner, making concurrent quota
// reservations for the same owner queue behind each other.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, username, quota_limit_bytes, created_at FROM users
		WHERE id = $1
		FOR UPDATE
	`
	return r.scanOne(ctx, query, id)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, username, quota_limit_bytes, created_at FROM users
		WHERE id = $1
	`
	return r.scanOne(ctx, query, id)
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, id string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&user.ID, &user.Username, &user.QuotaLimitBytes, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
