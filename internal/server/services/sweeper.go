package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sealvault/sealvault/internal/logging"
	sc "github.com/sealvault/sealvault/internal/server/config"
	"github.com/sealvault/sealvault/internal/server/objstore"
	"github.com/sealvault/sealvault/internal/server/repositories/repomanager"
)

// sweepBatchSize caps how many orphans one sweep pass processes.
const sweepBatchSize = 100

// Sweeper deletes orphaned blobs asynchronously. Release never deletes
// inline because a concurrent upload of the same hash may be about to
// resurrect the blob; instead zero-reference blobs sit out a grace window
// and are re-checked at deletion time.
type Sweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       objstore.ObjectStore
	logger      logging.Logger
	interval    time.Duration
	grace       time.Duration
}

// NewSweeper constructs a Sweeper from server config.
func NewSweeper(db *sql.DB, m repomanager.RepositoryManager, store objstore.ObjectStore, cfg *sc.Config, logger logging.Logger) *Sweeper {
	return &Sweeper{
		db:          db,
		repomanager: m,
		store:       store,
		logger:      logger.With("module", "sweeper"),
		interval:    cfg.SweepInterval,
		grace:       cfg.SweepGrace,
	}
}

// Run loops until the context is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error(ctx, "sweep failed", "error", err.Error())
			} else if n > 0 {
				s.logger.Info(ctx, "sweep completed", "deleted", n)
			}
		}
	}
}

// SweepOnce deletes every confirmed orphan past the grace window and
// reports how many blobs it removed.
//
// The metadata row goes first, guarded by a ref_count == 0 condition: if a
// concurrent upload resurrected the blob between candidate selection and
// now, the conditional delete misses and the object survives. Only after the
// row is gone is the object removed from the backend; at that point no new
// reference can attach, since a new upload of the same hash takes the
// create path with a fresh storage key.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	blobRepo := s.repomanager.Blobs(s.db)

	cutoff := time.Now().Add(-s.grace)
	candidates, err := blobRepo.SelectOrphaned(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("error selecting orphans: %w", err)
	}

	deleted := 0
	for _, blob := range candidates {
		ok, err := blobRepo.DeleteIfOrphaned(ctx, blob.ContentHash)
		if err != nil {
			return deleted, fmt.Errorf("error deleting orphan row: %w", err)
		}
		if !ok {
			// Resurrected since selection; leave it alone.
			s.logger.Debug(ctx, "orphan candidate resurrected", "content_hash", blob.ContentHash)
			continue
		}
		if err := s.store.Delete(ctx, blob.StorageKey); err != nil {
			// Row is gone, object lingers. Log and move on; the object is
			// unreachable and harmless, a later manual cleanup can collect it.
			s.logger.Error(ctx, "failed to delete orphan object",
				"storage_key", blob.StorageKey, "error", err.Error())
			continue
		}
		deleted++
	}
	return deleted, nil
}
