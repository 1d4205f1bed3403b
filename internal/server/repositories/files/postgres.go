package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/server/models"
)

// PostgresRepository implements the ownership ledger over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.UserFile) error {
	query := `
		INSERT INTO user_files (id, owner_id, content_hash, filename, wrapped_key, key_nonce, folder_id, is_starred)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	res, err := r.db.ExecContext(ctx, query,
		file.ID, file.OwnerID, file.ContentHash, file.Filename, file.WrappedKey, file.KeyNonce, file.FolderID, file.IsStarred)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.UserFile, error) {
	query := `
		SELECT id, owner_id, content_hash, filename, wrapped_key, key_nonce, folder_id, is_starred, created_at, trashed_at
		FROM user_files
		WHERE id = $1
	`
	file := &models.UserFile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&file.ID, &file.OwnerID, &file.ContentHash, &file.Filename, &file.WrappedKey,
		&file.KeyNonce, &file.FolderID, &file.IsStarred, &file.CreatedAt, &file.TrashedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) SetTrashed(ctx context.Context, id, ownerID string, trashed bool) error {
	var query string
	if trashed {
		query = `UPDATE user_files SET trashed_at = now() WHERE id = $1 AND owner_id = $2 AND trashed_at IS NULL`
	} else {
		query = `UPDATE user_files SET trashed_at = NULL WHERE id = $1 AND owner_id = $2 AND trashed_at IS NOT NULL`
	}
	res, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID string) (*models.UserFile, error) {
	query := `
		DELETE FROM user_files
		WHERE id = $1 AND owner_id = $2
		RETURNING id, owner_id, content_hash, filename, wrapped_key, key_nonce, folder_id, is_starred, created_at, trashed_at
	`
	file := &models.UserFile{}
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&file.ID, &file.OwnerID, &file.ContentHash, &file.Filename, &file.WrappedKey,
		&file.KeyNonce, &file.FolderID, &file.IsStarred, &file.CreatedAt, &file.TrashedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) UsageBytes(ctx context.Context, ownerID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(b.size_bytes), 0)
		FROM user_files f
		JOIN content_blobs b ON b.content_hash = f.content_hash
		WHERE f.owner_id = $1 AND f.trashed_at IS NULL
	`
	var usage int64
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&usage); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return usage, nil
}
