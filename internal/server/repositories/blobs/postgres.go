package blobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/server/models"
)

// pgUniqueViolation is the PostgreSQL error code for a unique constraint hit.
const pgUniqueViolation = "23505"

// PostgresRepository implements blob bookkeeping over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// IncrementRef is the dedup fast path: one atomic statement that both bumps
// the count and un-marks a pending orphan, so a resurrected blob can never
// be swept.
func (r *PostgresRepository) IncrementRef(ctx context.Context, contentHash string) (int64, error) {
	query := `
		UPDATE content_blobs
		SET ref_count = ref_count + 1, orphaned_at = NULL
		WHERE content_hash = $1
		RETURNING ref_count
	`
	var refCount int64
	err := r.db.QueryRowContext(ctx, query, contentHash).Scan(&refCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return refCount, nil
}

func (r *PostgresRepository) Create(ctx context.Context, blob *models.ContentBlob) error {
	query := `
		INSERT INTO content_blobs (content_hash, size_bytes, storage_key, ref_count)
		VALUES ($1, $2, $3, 1)
	`
	_, err := r.db.ExecContext(ctx, query, blob.ContentHash, blob.SizeBytes, blob.StorageKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, contentHash string) (*models.ContentBlob, error) {
	query := `
		SELECT content_hash, size_bytes, storage_key, ref_count, orphaned_at, created_at
		FROM content_blobs
		WHERE content_hash = $1
	`
	blob := &models.ContentBlob{}
	err := r.db.QueryRowContext(ctx, query, contentHash).
		Scan(&blob.ContentHash, &blob.SizeBytes, &blob.StorageKey, &blob.RefCount, &blob.OrphanedAt, &blob.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return blob, nil
}

// DecrementRef never deletes: a zero count only stamps orphaned_at so the
// sweeper can pick the blob up after the grace window.
func (r *PostgresRepository) DecrementRef(ctx context.Context, contentHash string) (int64, error) {
	query := `
		UPDATE content_blobs
		SET ref_count = ref_count - 1,
		    orphaned_at = CASE WHEN ref_count - 1 = 0 THEN now() ELSE orphaned_at END
		WHERE content_hash = $1 AND ref_count > 0
		RETURNING ref_count
	`
	var refCount int64
	err := r.db.QueryRowContext(ctx, query, contentHash).Scan(&refCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return refCount, nil
}

func (r *PostgresRepository) SelectOrphaned(ctx context.Context, cutoff time.Time, limit int) ([]*models.ContentBlob, error) {
	query := `
		SELECT content_hash, size_bytes, storage_key, ref_count, orphaned_at, created_at
		FROM content_blobs
		WHERE ref_count = 0 AND orphaned_at IS NOT NULL AND orphaned_at < $1
		ORDER BY orphaned_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select orphaned blobs: %w", err)
	}
	defer rows.Close()

	var result []*models.ContentBlob
	for rows.Next() {
		var item models.ContentBlob
		if err := rows.Scan(&item.ContentHash, &item.SizeBytes, &item.StorageKey, &item.RefCount, &item.OrphanedAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteIfOrphaned(ctx context.Context, contentHash string) (bool, error) {
	query := `DELETE FROM content_blobs WHERE content_hash = $1 AND ref_count = 0`
	res, err := r.db.ExecContext(ctx, query, contentHash)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}
