package shares

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/server/models"
)

// PostgresRepository implements share-link storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, share *models.ShareLink) error {
	var identities any
	if len(share.AllowedIdentities) > 0 {
		b, err := json.Marshal(share.AllowedIdentities)
		if err != nil {
			return fmt.Errorf("marshal allowed identities: %w", err)
		}
		identities = b
	}

	query := `
		INSERT INTO share_links
			(id, token, user_file_id, wrapped_key, key_nonce, kdf_salt, kdf_time, kdf_memory_kib, kdf_threads,
			 expires_at, max_downloads, allowed_identities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		share.ID, share.Token, share.UserFileID, share.WrappedKey, share.KeyNonce,
		share.KDFSalt, share.KDFTime, share.KDFMemoryKiB, share.KDFThreads,
		share.ExpiresAt, share.MaxDownloads, identities)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, token, user_file_id, wrapped_key, key_nonce, kdf_salt, kdf_time, kdf_memory_kib, kdf_threads,
	       expires_at, max_downloads, download_count, allowed_identities, created_at
	FROM share_links
`

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	return r.scanOne(ctx, selectColumns+` WHERE token = $1`, token)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ShareLink, error) {
	return r.scanOne(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, arg any) (*models.ShareLink, error) {
	share := &models.ShareLink{}
	var identities []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&share.ID, &share.Token, &share.UserFileID, &share.WrappedKey, &share.KeyNonce,
		&share.KDFSalt, &share.KDFTime, &share.KDFMemoryKiB, &share.KDFThreads,
		&share.ExpiresAt, &share.MaxDownloads, &share.DownloadCount, &identities, &share.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(identities) > 0 {
		if err := json.Unmarshal(identities, &share.AllowedIdentities); err != nil {
			return nil, fmt.Errorf("unmarshal allowed identities: %w", err)
		}
	}
	return share, nil
}

// TryConsumeDownload re-checks the cap and the expiry inside the UPDATE
// itself, so N racing accessors at the boundary can never push the count
// past max_downloads.
func (r *PostgresRepository) TryConsumeDownload(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE share_links
		SET download_count = download_count + 1
		WHERE id = $1
		  AND (max_downloads IS NULL OR download_count < max_downloads)
		  AND (expires_at IS NULL OR expires_at > now())
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_links WHERE id = $1`, id)
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

func (r *PostgresRepository) DeleteByUserFile(ctx context.Context, userFileID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM share_links WHERE user_file_id = $1`, userFileID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
