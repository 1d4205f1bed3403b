package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/cryptox"
	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/logging"
	sc "github.com/sealvault/sealvault/internal/server/config"
	"github.com/sealvault/sealvault/internal/server/models"
	"github.com/sealvault/sealvault/internal/server/repositories/repomanager"
)

// ShareOptions are the owner-chosen lifecycle limits for a new share link.
// Nil means unlimited.
type ShareOptions struct {
	ExpiresAt         *time.Time
	MaxDownloads      *int64
	AllowedIdentities []string
}

// AccessGrant is the result of a successful share access: a short-lived
// content URL and the unwrapped content key for client-side decryption.
// The key is never logged or persisted.
type AccessGrant struct {
	ContentURL string
	Key        []byte
	Filename   string
}

// ShareService manages password-protected share links: creation (re-wrapping
// the content key under a password-derived key), the access state machine,
// and revocation.
//
// Every access failure surfaces as common.ErrAccessDenied regardless of
// cause, so the response is no oracle for token existence, expiry, or
// password correctness. The specific reason is logged for owner analytics.
type ShareService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	content     *ContentStore
	logger      logging.Logger
	kdfParams   cryptox.KDFParams
}

// NewShareService constructs a ShareService using repositories, the content
// store, and server config.
func NewShareService(db *sql.DB, m repomanager.RepositoryManager, content *ContentStore, cfg *sc.Config, logger logging.Logger) *ShareService {
	return &ShareService{
		db:          db,
		repomanager: m,
		content:     content,
		logger:      logger.With("module", "share_service"),
		kdfParams: cryptox.KDFParams{
			Time:      cfg.KDFTime,
			MemoryKiB: cfg.KDFMemoryKiB,
			Threads:   cfg.KDFThreads,
		},
	}
}

// Create builds a share link for one of the owner's files.
//
// The owner supplies the key-encryption key their client derived; it is used
// once to unwrap the file's content key, which is immediately re-wrapped
// under an argon2id key derived from the share password with a fresh salt.
// Neither the owner KEK nor the bare content key is ever persisted.
func (s *ShareService) Create(ctx context.Context, ownerID, userFileID string, ownerKEK []byte, password string, opts ShareOptions) (*models.ShareLink, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, userFileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID || file.Trashed() {
		return nil, common.ErrNotFound
	}

	contentKey, err := cryptox.UnwrapKey(file.WrappedKey, file.KeyNonce, ownerKEK)
	if err != nil {
		return nil, common.ErrUnauthorized
	}
	defer common.WipeByteArray(contentKey)

	salt, err := cryptox.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("error generating salt: %w", err)
	}

	derived := cryptox.DeriveKey([]byte(password), salt, s.kdfParams)
	defer common.WipeByteArray(derived)

	wrapped, nonce, err := cryptox.WrapKey(contentKey, derived)
	if err != nil {
		return nil, fmt.Errorf("error wrapping key: %w", err)
	}

	token, err := cryptox.NewShareToken()
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	share := &models.ShareLink{
		ID:                uuid.New().String(),
		Token:             token,
		UserFileID:        file.ID,
		WrappedKey:        wrapped,
		KeyNonce:          nonce,
		KDFSalt:           salt,
		KDFTime:           s.kdfParams.Time,
		KDFMemoryKiB:      s.kdfParams.MemoryKiB,
		KDFThreads:        s.kdfParams.Threads,
		ExpiresAt:         opts.ExpiresAt,
		MaxDownloads:      opts.MaxDownloads,
		AllowedIdentities: opts.AllowedIdentities,
	}

	if err := s.repomanager.Shares(s.db).Create(ctx, share); err != nil {
		return nil, fmt.Errorf("error creating share: %w", err)
	}
	return share, nil
}

// deny logs the internal reason for the owner's analytics and returns the
// uniform external error.
func (s *ShareService) deny(ctx context.Context, shareID, reason string) error {
	s.logger.Info(ctx, "share access denied", "share_id", shareID, "reason", reason)
	return common.ErrAccessDenied
}

// Access resolves a share token with its password.
//
// The terminal conditions (expired, exhausted, revoked) are derived at
// access time, never precomputed. The download counter is consumed with a
// single conditional update after the password has proven correct, so at
// most max_downloads accesses can ever succeed, no matter how many arrive
// concurrently.
func (s *ShareService) Access(ctx context.Context, token, password string, requesterIdentity *string) (*AccessGrant, error) {
	sharesRepo := s.repomanager.Shares(s.db)

	share, err := sharesRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Unknown token and wrong password must be indistinguishable.
			return nil, s.deny(ctx, "", models.AccessReasonUnknownToken)
		}
		return nil, fmt.Errorf("error looking up share: %w", err)
	}

	file, err := s.repomanager.Files(s.db).GetByID(ctx, share.UserFileID)
	if err != nil || file.Trashed() {
		return nil, s.deny(ctx, share.ID, models.AccessReasonUnknownToken)
	}

	var identity string
	if requesterIdentity != nil {
		identity = *requesterIdentity
	}
	if !share.IdentityAllowed(identity) {
		return nil, s.deny(ctx, share.ID, models.AccessReasonIdentityDenied)
	}

	now := time.Now()
	if share.ExpiresAt != nil && now.After(*share.ExpiresAt) {
		return nil, s.deny(ctx, share.ID, models.AccessReasonExpired)
	}
	if share.MaxDownloads != nil && share.DownloadCount >= *share.MaxDownloads {
		return nil, s.deny(ctx, share.ID, models.AccessReasonExhausted)
	}

	derived := cryptox.DeriveKey([]byte(password), share.KDFSalt, cryptox.KDFParams{
		Time:      share.KDFTime,
		MemoryKiB: share.KDFMemoryKiB,
		Threads:   share.KDFThreads,
	})
	defer common.WipeByteArray(derived)

	contentKey, err := cryptox.UnwrapKey(share.WrappedKey, share.KeyNonce, derived)
	if err != nil {
		return nil, s.deny(ctx, share.ID, models.AccessReasonBadPassword)
	}

	// The counter is consumed and the access logged in one transaction, so
	// the audit trail never shows more entries than consumed downloads.
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		consumed, err := s.repomanager.Shares(tx).TryConsumeDownload(ctx, share.ID)
		if err != nil {
			return fmt.Errorf("error consuming download: %w", err)
		}
		if !consumed {
			return common.ErrAccessDenied
		}
		return s.repomanager.Downloads(tx).Append(ctx, &models.DownloadLogEntry{
			ID:         uuid.New().String(),
			ShareID:    &share.ID,
			UserFileID: file.ID,
			Accessor:   requesterIdentity,
		})
	})
	if err != nil {
		common.WipeByteArray(contentKey)
		if errors.Is(err, common.ErrAccessDenied) {
			return nil, s.deny(ctx, share.ID, models.AccessReasonExhausted)
		}
		return nil, err
	}

	url, err := s.content.PresignGet(ctx, file.ContentHash)
	if err != nil {
		common.WipeByteArray(contentKey)
		return nil, err
	}

	return &AccessGrant{ContentURL: url, Key: contentKey, Filename: file.Filename}, nil
}

// Revoke deletes a share link. Subsequent accesses fail like any other
// denial; revocation is terminal.
func (s *ShareService) Revoke(ctx context.Context, ownerID, shareID string) error {
	share, err := s.repomanager.Shares(s.db).GetByID(ctx, shareID)
	if err != nil {
		return err
	}
	file, err := s.repomanager.Files(s.db).GetByID(ctx, share.UserFileID)
	if err != nil {
		return err
	}
	if file.OwnerID != ownerID {
		return common.ErrNotFound
	}
	return s.repomanager.Shares(s.db).Delete(ctx, shareID)
}

// DownloadHistory returns the owner's audit trail for a file, including the
// internal access records successful share downloads leave behind.
func (s *ShareService) DownloadHistory(ctx context.Context, ownerID, userFileID string, limit int) ([]*models.DownloadLogEntry, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, userFileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return s.repomanager.Downloads(s.db).ListByUserFile(ctx, userFileID, limit)
}
