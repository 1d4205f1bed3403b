package blobs

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const incrementQ = `(?s)^\s*UPDATE\s+content_blobs\s+SET\s+ref_count\s*=\s*ref_count\s*\+\s*1,\s*orphaned_at\s*=\s*NULL\s+WHERE\s+content_hash\s*=\s*\$1\s+RETURNING\s+ref_count\s*$`

func TestIncrementRef_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"ref_count"}).AddRow(int64(3))
	mock.ExpectQuery(incrementQ).WithArgs("h1").WillReturnRows(rows)

	n, err := repo.IncrementRef(context.Background(), "h1")
	if err != nil {
		t.Fatalf("IncrementRef error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected ref_count 3, got %d", n)
	}
}

func TestIncrementRef_NoRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(incrementQ).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.IncrementRef(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

const createQ = `(?s)^\s*INSERT\s+INTO\s+content_blobs\s*\(content_hash,\s*size_bytes,\s*storage_key,\s*ref_count\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*1\)\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(createQ).
		WithArgs("h1", int64(42), "blobs/h1/key").
		WillReturnResult(sqlmock.NewResult(0, 1))

	blob := &models.ContentBlob{ContentHash: "h1", SizeBytes: 42, StorageKey: "blobs/h1/key"}
	if err := repo.Create(context.Background(), blob); err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	pgErr := &pgconn.PgError{Code: "23505"}
	mock.ExpectExec(createQ).
		WithArgs("h1", int64(42), "blobs/h1/key").
		WillReturnError(pgErr)

	err := repo.Create(context.Background(), &models.ContentBlob{ContentHash: "h1", SizeBytes: 42, StorageKey: "blobs/h1/key"})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(createQ).
		WithArgs("h1", int64(42), "blobs/h1/key").
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.ContentBlob{ContentHash: "h1", SizeBytes: 42, StorageKey: "blobs/h1/key"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

const decrementQ = `(?s)^\s*UPDATE\s+content_blobs\s+SET\s+ref_count\s*=\s*ref_count\s*-\s*1,\s*orphaned_at\s*=\s*CASE\s+WHEN\s+ref_count\s*-\s*1\s*=\s*0\s+THEN\s+now\(\)\s+ELSE\s+orphaned_at\s+END\s+WHERE\s+content_hash\s*=\s*\$1\s+AND\s+ref_count\s*>\s*0\s+RETURNING\s+ref_count\s*$`

func TestDecrementRef_ReachesZero(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"ref_count"}).AddRow(int64(0))
	mock.ExpectQuery(decrementQ).WithArgs("h1").WillReturnRows(rows)

	n, err := repo.DecrementRef(context.Background(), "h1")
	if err != nil {
		t.Fatalf("DecrementRef error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected ref_count 0, got %d", n)
	}
}

func TestDecrementRef_AlreadyZero(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// ref_count > 0 guard filtered the row out.
	mock.ExpectQuery(decrementQ).WithArgs("h1").WillReturnError(sql.ErrNoRows)

	_, err := repo.DecrementRef(context.Background(), "h1")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectOrphaned_ReturnsCandidates(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+content_hash,\s*size_bytes,\s*storage_key,\s*ref_count,\s*orphaned_at,\s*created_at\s+FROM\s+content_blobs\s+WHERE\s+ref_count\s*=\s*0\s+AND\s+orphaned_at\s+IS\s+NOT\s+NULL\s+AND\s+orphaned_at\s*<\s*\$1\s+ORDER\s+BY\s+orphaned_at\s+LIMIT\s+\$2\s*$`

	cutoff := time.Now()
	orphanedAt := cutoff.Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"content_hash", "size_bytes", "storage_key", "ref_count", "orphaned_at", "created_at"}).
		AddRow("h1", int64(10), "blobs/h1/key", int64(0), orphanedAt, orphanedAt.Add(-time.Hour)).
		AddRow("h2", int64(20), "blobs/h2/key", int64(0), orphanedAt, orphanedAt.Add(-time.Hour))
	mock.ExpectQuery(q).WithArgs(cutoff, 100).WillReturnRows(rows)

	got, err := repo.SelectOrphaned(context.Background(), cutoff, 100)
	if err != nil {
		t.Fatalf("SelectOrphaned error: %v", err)
	}
	if len(got) != 2 || got[0].ContentHash != "h1" || got[1].StorageKey != "blobs/h2/key" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

const deleteIfOrphanedQ = `(?s)^DELETE\s+FROM\s+content_blobs\s+WHERE\s+content_hash\s*=\s*\$1\s+AND\s+ref_count\s*=\s*0\s*$`

func TestDeleteIfOrphaned_Deleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteIfOrphanedQ).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.DeleteIfOrphaned(context.Background(), "h1")
	if err != nil {
		t.Fatalf("DeleteIfOrphaned error: %v", err)
	}
	if !ok {
		t.Fatal("expected deletion to be reported")
	}
}

func TestDeleteIfOrphaned_Resurrected(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// ref_count went back above zero between selection and deletion.
	mock.ExpectExec(deleteIfOrphanedQ).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.DeleteIfOrphaned(context.Background(), "h1")
	if err != nil {
		t.Fatalf("DeleteIfOrphaned error: %v", err)
	}
	if ok {
		t.Fatal("expected no deletion")
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+content_hash,\s*size_bytes,\s*storage_key,\s*ref_count,\s*orphaned_at,\s*created_at\s+FROM\s+content_blobs\s+WHERE\s+content_hash\s*=\s*\$1\s*$`

	created := time.Now()
	rows := sqlmock.NewRows([]string{"content_hash", "size_bytes", "storage_key", "ref_count", "orphaned_at", "created_at"}).
		AddRow("h1", int64(42), "blobs/h1/key", int64(2), nil, created)
	mock.ExpectQuery(q).WithArgs("h1").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "h1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.RefCount != 2 || got.OrphanedAt != nil || got.StorageKey != "blobs/h1/key" {
		t.Fatalf("unexpected blob: %+v", got)
	}
}
