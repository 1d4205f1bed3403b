package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/logging"
	sc "github.com/sealvault/sealvault/internal/server/config"
	"github.com/sealvault/sealvault/internal/server/models"
	"github.com/sealvault/sealvault/internal/server/repositories/repomanager"
)

// UploadRequest carries everything the client sends for one upload. The
// ciphertext and the content hash of the original plaintext are produced
// client-side; the server never sees plaintext or an unwrapped content key.
type UploadRequest struct {
	OwnerID     string
	Username    string
	ContentHash string
	Ciphertext  []byte
	Size        int64
	// WrappedKey is the content key wrapped for the owner; KeyNonce is its
	// AEAD nonce.
	WrappedKey []byte
	KeyNonce   []byte
	Filename   string
	FolderID   *string
}

// FileService is the ownership ledger: per-owner file records linking an
// owner to a content blob and to the owner's wrapped copy of the content
// key. It also enforces storage quotas on upload.
type FileService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	content      *ContentStore
	logger       logging.Logger
	defaultQuota int64
}

// NewFileService constructs a FileService using repositories, the content
// store, and server config.
func NewFileService(db *sql.DB, m repomanager.RepositoryManager, content *ContentStore, cfg *sc.Config, logger logging.Logger) *FileService {
	return &FileService{
		db:           db,
		repomanager:  m,
		content:      content,
		logger:       logger.With("module", "file_service"),
		defaultQuota: cfg.DefaultQuotaBytes,
	}
}

// Upload stores the ciphertext (deduplicated by content hash) and creates
// the owner's file record.
//
// Quota is checked and reserved atomically with the record insert: the
// owner's row is locked for the duration of the transaction, so two
// concurrent uploads cannot both pass a check only one should pass. Logical
// charging applies: an owner pays for content they own even when dedup maps
// it onto a blob another owner already paid for.
func (s *FileService) Upload(ctx context.Context, req *UploadRequest) (*models.UserFile, error) {
	// The declared size feeds the quota reservation, so it must be what the
	// client actually sent, not what it claims.
	if req.Size != int64(len(req.Ciphertext)) {
		return nil, fmt.Errorf("%w: declared size does not match ciphertext length", common.ErrInvalidArgument)
	}

	if err := s.repomanager.Users(s.db).Ensure(ctx, req.OwnerID, req.Username, s.defaultQuota); err != nil {
		return nil, fmt.Errorf("error ensuring owner: %w", err)
	}

	// Storage first. The blob reference is taken before any ledger state is
	// written, and released again if the transaction below fails.
	if _, err := s.content.Put(ctx, req.ContentHash, req.Ciphertext, req.Size); err != nil {
		return nil, err
	}

	file := &models.UserFile{
		ID:          uuid.New().String(),
		OwnerID:     req.OwnerID,
		ContentHash: req.ContentHash,
		Filename:    req.Filename,
		WrappedKey:  req.WrappedKey,
		KeyNonce:    req.KeyNonce,
		FolderID:    req.FolderID,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		owner, err := s.repomanager.Users(tx).GetForUpdate(ctx, req.OwnerID)
		if err != nil {
			return fmt.Errorf("error locking owner: %w", err)
		}

		usage, err := s.repomanager.Files(tx).UsageBytes(ctx, req.OwnerID)
		if err != nil {
			return fmt.Errorf("error computing usage: %w", err)
		}
		if usage+req.Size > owner.QuotaLimitBytes {
			return common.ErrQuotaExceeded
		}

		return s.repomanager.Files(tx).Create(ctx, file)
	})
	if err != nil {
		// No ledger row was committed; give the blob reference back.
		if relErr := s.content.Release(ctx, req.ContentHash); relErr != nil {
			s.logger.Error(ctx, "failed to release blob after aborted upload",
				"content_hash", req.ContentHash, "error", relErr.Error())
		}
		if errors.Is(err, common.ErrQuotaExceeded) {
			return nil, common.ErrQuotaExceeded
		}
		return nil, fmt.Errorf("error creating file: %w", err)
	}

	return file, nil
}

// Trash soft-deletes a file. The blob reference is kept until permanent
// deletion.
func (s *FileService) Trash(ctx context.Context, ownerID, fileID string) error {
	return s.repomanager.Files(s.db).SetTrashed(ctx, fileID, ownerID, true)
}

// Restore brings a trashed file back.
func (s *FileService) Restore(ctx context.Context, ownerID, fileID string) error {
	return s.repomanager.Files(s.db).SetTrashed(ctx, fileID, ownerID, false)
}

// PermanentlyDelete removes the file record and every share of it in one
// transaction, then releases the blob reference. Orphaned blobs are cleaned
// up later by the sweeper, never inline.
func (s *FileService) PermanentlyDelete(ctx context.Context, ownerID, fileID string) error {
	var contentHash string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Shares(tx).DeleteByUserFile(ctx, fileID); err != nil {
			return fmt.Errorf("error revoking shares: %w", err)
		}
		file, err := s.repomanager.Files(tx).Delete(ctx, fileID, ownerID)
		if err != nil {
			return err
		}
		contentHash = file.ContentHash
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return fmt.Errorf("error deleting file: %w", err)
	}

	if err := s.content.Release(ctx, contentHash); err != nil {
		// The ledger row is gone; the sweeper cannot see this reference
		// anymore, so a failed release is only a leak to log loudly.
		s.logger.Error(ctx, "failed to release blob after permanent delete",
			"content_hash", contentHash, "error", err.Error())
	}
	return nil
}

// Usage reports the owner's current logical storage consumption in bytes.
func (s *FileService) Usage(ctx context.Context, ownerID string) (int64, error) {
	return s.repomanager.Files(s.db).UsageBytes(ctx, ownerID)
}
