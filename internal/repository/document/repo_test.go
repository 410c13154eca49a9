package document

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

func newMockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })
	return New(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestInsert_ReturnsAssignedFields(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("hello world", "[1,0]", []byte(`{"model":"bge-small"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now))

	doc, err := repo.Insert(context.Background(), "hello world", []float32{1, 0},
		map[string]string{"model": "bge-small"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != 42 {
		t.Errorf("unexpected id: %d", doc.ID)
	}
	if !doc.CreatedAt.Equal(now) {
		t.Errorf("unexpected created_at: %v", doc.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInsert_NilMetadata(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("no meta", "[0.5]", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	if _, err := repo.Insert(context.Background(), "no meta", []float32{0.5}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInsert_StoreFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.Insert(context.Background(), "x", []float32{1}, nil)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestDelete_Existing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := repo.Delete(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !removed {
		t.Error("expected removed=true for an existing row")
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
		WithArgs(int64(999)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.Delete(context.Background(), 999)
	if err != nil {
		t.Fatalf("a missing id must not be an error, got %v", err)
	}
	if removed {
		t.Error("expected removed=false for a missing row")
	}
}

func TestDelete_StoreFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents")).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Delete(context.Background(), 1)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestRankBySimilarity_OrderedResults(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY embedding <=> $1::vector, id")).
		WithArgs("[1,0]", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "similarity"}).
			AddRow(int64(1), "alpha", 1.0).
			AddRow(int64(3), "gamma", 0.94).
			AddRow(int64(2), "beta", 0.0))

	results, err := repo.RankBySimilarity(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 3 || results[2].ID != 2 {
		t.Errorf("unexpected order: %+v", results)
	}
	if results[0].Similarity != 1.0 {
		t.Errorf("unexpected top similarity: %f", results[0].Similarity)
	}
}

func TestRankBySimilarity_ZeroNormRejected(t *testing.T) {
	repo, mock := newMockRepo(t)

	// no query expectation: the vector must be rejected before touching the store
	_, err := repo.RankBySimilarity(context.Background(), []float32{0, 0}, 5)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRankBySimilarity_LimitBelowOne(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.RankBySimilarity(context.Background(), []float32{1, 0}, 0)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRankBySimilarity_QueryFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY embedding <=> $1::vector, id")).
		WillReturnError(errors.New(`operator does not exist: vector <=> vector`))

	_, err := repo.RankBySimilarity(context.Background(), []float32{1, 0}, 5)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}
