// Package services contains the server-side business logic of the vault:
// deduplicated ciphertext storage, the ownership ledger with quota
// enforcement, share-link lifecycle, and the orphan sweeper.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/logging"
	sc "github.com/sealvault/sealvault/internal/server/config"
	"github.com/sealvault/sealvault/internal/server/models"
	"github.com/sealvault/sealvault/internal/server/objstore"
	"github.com/sealvault/sealvault/internal/server/repositories/repomanager"
)

// createRaceRetries bounds how often Put re-runs the increment-or-create
// dance when racing other uploaders of the same hash.
const createRaceRetries = 3

// ContentStore manages deduplicated ciphertext blobs: metadata rows keyed by
// content hash in Postgres, object bodies in the S3 backend.
type ContentStore struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	store         objstore.ObjectStore
	logger        logging.Logger
	presignExpiry time.Duration
}

// NewContentStore constructs a ContentStore using repositories, the object
// storage backend, and server config.
func NewContentStore(db *sql.DB, m repomanager.RepositoryManager, store objstore.ObjectStore, cfg *sc.Config, logger logging.Logger) *ContentStore {
	return &ContentStore{
		db:            db,
		repomanager:   m,
		store:         store,
		logger:        logger.With("module", "content_store"),
		presignExpiry: cfg.PresignExpiry,
	}
}

// newStorageKey builds the object key for a blob. The random suffix keeps a
// resurrected hash from colliding with an object the sweeper is deleting.
func newStorageKey(contentHash string) string {
	prefix := contentHash
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return fmt.Sprintf("blobs/%s/%s/%s", prefix, contentHash, uuid.New())
}

// Put stores ciphertext under its content hash, deduplicating against
// existing uploads.
//
// The fast path is a single atomic reference increment. Only when no blob
// exists is the ciphertext written to the backend, and the metadata row is
// inserted strictly after the object write is durable, so an aborted upload
// never leaves a row pointing at a missing object. A concurrent creator
// winning the unique constraint degrades this caller to the increment path;
// the loser deletes its own just-written object.
func (s *ContentStore) Put(ctx context.Context, contentHash string, ciphertext []byte, size int64) (*models.ContentBlob, error) {
	blobRepo := s.repomanager.Blobs(s.db)

	for attempt := 0; attempt <= createRaceRetries; attempt++ {
		if _, err := blobRepo.IncrementRef(ctx, contentHash); err == nil {
			blob, err := blobRepo.Get(ctx, contentHash)
			if err != nil {
				return nil, err
			}
			// A size disagreeing with the stored blob means the hash is not
			// an address for this ciphertext. Give the reference back.
			if blob.SizeBytes != size {
				if _, decErr := blobRepo.DecrementRef(ctx, contentHash); decErr != nil {
					s.logger.Error(ctx, "failed to release mismatched reference",
						"content_hash", contentHash, "error", decErr.Error())
				}
				return nil, fmt.Errorf("%w: declared size does not match stored blob", common.ErrInvalidArgument)
			}
			return blob, nil
		} else if !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("error incrementing blob ref: %w", err)
		}

		blob := &models.ContentBlob{
			ContentHash: contentHash,
			SizeBytes:   size,
			StorageKey:  newStorageKey(contentHash),
			RefCount:    1,
		}

		// Object first, row second. A failure here commits nothing.
		if err := s.store.Put(ctx, blob.StorageKey, ciphertext); err != nil {
			return nil, err
		}

		err := blobRepo.Create(ctx, blob)
		if err == nil {
			return blob, nil
		}
		if errors.Is(err, common.ErrConflict) {
			// Lost the create race. Our object is unreferenced garbage under
			// a key nobody else knows; drop it and take the increment path.
			if delErr := s.store.Delete(ctx, blob.StorageKey); delErr != nil {
				s.logger.Warn(ctx, "failed to delete losing duplicate object",
					"storage_key", blob.StorageKey, "error", delErr.Error())
			}
			continue
		}
		return nil, fmt.Errorf("error creating blob: %w", err)
	}

	return nil, fmt.Errorf("%w: put retries exhausted", common.ErrConflict)
}

// Get streams the ciphertext for a content hash, or common.ErrNotFound.
func (s *ContentStore) Get(ctx context.Context, contentHash string) (io.ReadCloser, error) {
	blob, err := s.repomanager.Blobs(s.db).Get(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, blob.StorageKey)
}

// PresignGet returns a short-lived download URL for a content hash.
func (s *ContentStore) PresignGet(ctx context.Context, contentHash string) (string, error) {
	blob, err := s.repomanager.Blobs(s.db).Get(ctx, contentHash)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, blob.StorageKey, s.presignExpiry)
}

// Release drops one reference. The blob is never deleted inline; a zero
// count only marks it for the sweeper, which re-checks after the grace
// window so a racing re-upload can claim it back.
func (s *ContentStore) Release(ctx context.Context, contentHash string) error {
	refCount, err := s.repomanager.Blobs(s.db).DecrementRef(ctx, contentHash)
	if err != nil {
		return fmt.Errorf("error releasing blob: %w", err)
	}
	if refCount == 0 {
		s.logger.Debug(ctx, "blob orphaned", "content_hash", contentHash)
	}
	return nil
}
