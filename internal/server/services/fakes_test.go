package services

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"sync"
	"time"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/dbx"
	"github.com/sealvault/sealvault/internal/logging"
	"github.com/sealvault/sealvault/internal/server/models"
	"github.com/sealvault/sealvault/internal/server/repositories/blobs"
	"github.com/sealvault/sealvault/internal/server/repositories/downloads"
	"github.com/sealvault/sealvault/internal/server/repositories/files"
	"github.com/sealvault/sealvault/internal/server/repositories/repomanager"
	"github.com/sealvault/sealvault/internal/server/repositories/shares"
	"github.com/sealvault/sealvault/internal/server/repositories/users"
)

// ---- logging ----

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (nopLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, args ...any) {}
func (nopLogger) With(args ...any) logging.Logger                    { return nopLogger{} }

// ---- object storage ----

// fakeObjStore is an in-memory ObjectStore counting writes and deletes.
type fakeObjStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	deletes int
	putErr  error
}

func newFakeObjStore() *fakeObjStore {
	return &fakeObjStore{objects: map[string][]byte{}}
}

func (f *fakeObjStore) Put(ctx context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.objects[key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeObjStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeObjStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.objects, key)
	return nil
}

func (f *fakeObjStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return "", common.ErrNotFound
	}
	return "https://example.test/" + key, nil
}

// ---- repositories ----

// fakeBlobsRepo mirrors the SQL semantics of the Postgres implementation in
// memory, including conditional decrement and the orphan re-check.
type fakeBlobsRepo struct {
	mu    sync.Mutex
	blobs map[string]*models.ContentBlob
}

func newFakeBlobsRepo() *fakeBlobsRepo {
	return &fakeBlobsRepo{blobs: map[string]*models.ContentBlob{}}
}

func (f *fakeBlobsRepo) IncrementRef(ctx context.Context, hash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[hash]
	if !ok {
		return 0, common.ErrNotFound
	}
	b.RefCount++
	b.OrphanedAt = nil
	return b.RefCount, nil
}

func (f *fakeBlobsRepo) Create(ctx context.Context, blob *models.ContentBlob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[blob.ContentHash]; ok {
		return common.ErrConflict
	}
	cp := *blob
	cp.RefCount = 1
	cp.CreatedAt = time.Now()
	f.blobs[blob.ContentHash] = &cp
	return nil
}

func (f *fakeBlobsRepo) Get(ctx context.Context, hash string) (*models.ContentBlob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[hash]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBlobsRepo) DecrementRef(ctx context.Context, hash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[hash]
	if !ok || b.RefCount == 0 {
		return 0, common.ErrNotFound
	}
	b.RefCount--
	if b.RefCount == 0 {
		now := time.Now()
		b.OrphanedAt = &now
	}
	return b.RefCount, nil
}

func (f *fakeBlobsRepo) SelectOrphaned(ctx context.Context, cutoff time.Time, limit int) ([]*models.ContentBlob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.ContentBlob
	for _, b := range f.blobs {
		if b.RefCount == 0 && b.OrphanedAt != nil && b.OrphanedAt.Before(cutoff) {
			cp := *b
			result = append(result, &cp)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (f *fakeBlobsRepo) DeleteIfOrphaned(ctx context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[hash]
	if !ok || b.RefCount != 0 {
		return false, nil
	}
	delete(f.blobs, hash)
	return true, nil
}

type fakeUsersRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{users: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Ensure(ctx context.Context, id, username string, defaultQuotaBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.Username = username
		return nil
	}
	f.users[id] = &models.User{ID: id, Username: username, QuotaLimitBytes: defaultQuotaBytes, CreatedAt: time.Now()}
	return nil
}

func (f *fakeUsersRepo) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	return f.Get(ctx, id)
}

func (f *fakeUsersRepo) Get(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeFilesRepo struct {
	mu    sync.Mutex
	files map[string]*models.UserFile
	blobs *fakeBlobsRepo
}

func newFakeFilesRepo(blobs *fakeBlobsRepo) *fakeFilesRepo {
	return &fakeFilesRepo{files: map[string]*models.UserFile{}, blobs: blobs}
}

func (f *fakeFilesRepo) Create(ctx context.Context, file *models.UserFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *file
	cp.CreatedAt = time.Now()
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeFilesRepo) GetByID(ctx context.Context, id string) (*models.UserFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *file
	return &cp, nil
}

func (f *fakeFilesRepo) SetTrashed(ctx context.Context, id, ownerID string, trashed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok || file.OwnerID != ownerID || file.Trashed() == trashed {
		return common.ErrNotFound
	}
	if trashed {
		now := time.Now()
		file.TrashedAt = &now
	} else {
		file.TrashedAt = nil
	}
	return nil
}

func (f *fakeFilesRepo) Delete(ctx context.Context, id, ownerID string) (*models.UserFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok || file.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	delete(f.files, id)
	return file, nil
}

func (f *fakeFilesRepo) UsageBytes(ctx context.Context, ownerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, file := range f.files {
		if file.OwnerID == ownerID && !file.Trashed() {
			if b, err := f.blobs.Get(ctx, file.ContentHash); err == nil {
				sum += b.SizeBytes
			}
		}
	}
	return sum, nil
}

// fakeSharesRepo implements the conditional download consume under a mutex,
// matching the single-statement UPDATE semantics.
type fakeSharesRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.ShareLink
	byToken map[string]string
}

func newFakeSharesRepo() *fakeSharesRepo {
	return &fakeSharesRepo{byID: map[string]*models.ShareLink{}, byToken: map[string]string{}}
}

func (f *fakeSharesRepo) Create(ctx context.Context, share *models.ShareLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *share
	cp.CreatedAt = time.Now()
	f.byID[share.ID] = &cp
	f.byToken[share.Token] = share.ID
	return nil
}

func (f *fakeSharesRepo) GetByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byToken[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *f.byID[id]
	return &cp, nil
}

func (f *fakeSharesRepo) GetByID(ctx context.Context, id string) (*models.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	share, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *share
	return &cp, nil
}

func (f *fakeSharesRepo) TryConsumeDownload(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	share, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	if share.MaxDownloads != nil && share.DownloadCount >= *share.MaxDownloads {
		return false, nil
	}
	if share.ExpiresAt != nil && time.Now().After(*share.ExpiresAt) {
		return false, nil
	}
	share.DownloadCount++
	return true, nil
}

func (f *fakeSharesRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	share, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	delete(f.byToken, share.Token)
	delete(f.byID, id)
	return nil
}

func (f *fakeSharesRepo) DeleteByUserFile(ctx context.Context, userFileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, share := range f.byID {
		if share.UserFileID == userFileID {
			delete(f.byToken, share.Token)
			delete(f.byID, id)
		}
	}
	return nil
}

type fakeDownloadsRepo struct {
	mu      sync.Mutex
	entries []*models.DownloadLogEntry
}

func (f *fakeDownloadsRepo) Append(ctx context.Context, entry *models.DownloadLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	cp.CreatedAt = time.Now()
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeDownloadsRepo) ListByUserFile(ctx context.Context, userFileID string, limit int) ([]*models.DownloadLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.DownloadLogEntry
	for i := len(f.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if f.entries[i].UserFileID == userFileID {
			cp := *f.entries[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeDownloadsRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// ---- repository manager ----

// fakeRepoManager hands out the same fake repositories regardless of the
// DBTX, so transactional service code exercises the fakes directly.
type fakeRepoManager struct {
	users     *fakeUsersRepo
	blobs     *fakeBlobsRepo
	files     *fakeFilesRepo
	shares    *fakeSharesRepo
	downloads *fakeDownloadsRepo

	// blobsOverride, when set, replaces the plain fake so tests can inject
	// race behavior around the blobs repository.
	blobsOverride blobs.Repository
}

func newFakeRepoManager() *fakeRepoManager {
	blobsRepo := newFakeBlobsRepo()
	return &fakeRepoManager{
		users:     newFakeUsersRepo(),
		blobs:     blobsRepo,
		files:     newFakeFilesRepo(blobsRepo),
		shares:    newFakeSharesRepo(),
		downloads: &fakeDownloadsRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                  { return m.users }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository                  { return m.files }
func (m *fakeRepoManager) Shares(db dbx.DBTX) shares.Repository                { return m.shares }
func (m *fakeRepoManager) Downloads(db dbx.DBTX) downloads.Repository          { return m.downloads }

func (m *fakeRepoManager) Blobs(db dbx.DBTX) blobs.Repository {
	if m.blobsOverride != nil {
		return m.blobsOverride
	}
	return m.blobs
}

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)
