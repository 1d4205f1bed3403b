package models

import "time"

// ContentBlob is one deduplicated ciphertext object in the backing store,
// keyed by the client-computed hash of the original plaintext.
//
// A blob with RefCount == 0 is only a deletion candidate. Deletion is
// deferred to the orphan sweeper, which re-checks the count after a grace
// window so a concurrent re-upload of the same content can resurrect it.
type ContentBlob struct {
	// ContentHash is the hex digest of the original plaintext, computed
	// client-side. It is the dedup identity of the blob.
	ContentHash string
	// SizeBytes is the ciphertext length as stored.
	SizeBytes int64
	// StorageKey is the object-storage key of the ciphertext. It embeds a
	// random suffix so a resurrected hash never collides with an object the
	// sweeper is about to delete.
	StorageKey string
	// RefCount is the number of UserFile rows referencing this blob.
	RefCount int64
	// OrphanedAt is set when RefCount reaches zero and cleared again when a
	// new reference arrives before the sweep.
	OrphanedAt *time.Time
	CreatedAt  time.Time
}
