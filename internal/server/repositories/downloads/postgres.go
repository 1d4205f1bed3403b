package downloads

import (
	"context"
	"fmt"

	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, entry *models.DownloadLogEntry) error {
	query := `
		INSERT INTO download_log (id, share_id, user_file_id, accessor)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.ShareID, entry.UserFileID, entry.Accessor); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUserFile(ctx context.Context, userFileID string, limit int) ([]*models.DownloadLogEntry, error) {
	query := `
		SELECT id, share_id, user_file_id, accessor, created_at
		FROM download_log
		WHERE user_file_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userFileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select download log: %w", err)
	}
	defer rows.Close()

	var result []*models.DownloadLogEntry
	for rows.Next() {
		var item models.DownloadLogEntry
		if err := rows.Scan(&item.ID, &item.ShareID, &item.UserFileID, &item.Accessor, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
