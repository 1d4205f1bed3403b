// Package objstore adapts an S3-compatible backend for ciphertext blobs.
// The vault is the only caller and owns key naming; see services.ContentStore.
package objstore

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the minimal object-storage surface the vault needs.
// Implementations must retry transient backend failures internally and
// surface common.ErrStorageUnavailable once retries are exhausted.
type ObjectStore interface {
	// Put writes body under key. The write must be durable before Put
	// returns, because blob metadata is only committed afterwards.
	Put(ctx context.Context, key string, body []byte) error

	// Get returns a reader over the object at key, or common.ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Deleting a missing key is not an
	// error; the orphan sweeper relies on idempotent deletes.
	Delete(ctx context.Context, key string) error

	// PresignGet returns a short-lived URL for direct client download.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}
