// Package document is the documents table gateway: inserts, deletes and
// similarity-ranked queries over Postgres with the pgvector extension.
package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atlas-cloud/vecsearch/internal/db/pg"
	"github.com/atlas-cloud/vecsearch/internal/domain"
)

const defaultQueryTimeout = 10 * time.Second

// Repo implements the document store gateway over a pooled sqlx handle.
// Connections are acquired per statement; nothing is held across embedding
// calls, which happen before the repo is ever invoked.
type Repo struct {
	db           *sqlx.DB
	queryTimeout time.Duration
}

// New creates a document repository.
func New(db *sqlx.DB) *Repo {
	return &Repo{db: db, queryTimeout: defaultQueryTimeout}
}

// WithQueryTimeout overrides the per-statement timeout.
func (r *Repo) WithQueryTimeout(d time.Duration) *Repo {
	if d > 0 {
		r.queryTimeout = d
	}
	return r
}

// insertedRow is the scan target for the INSERT ... RETURNING statement.
type insertedRow struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

// resultRow is the scan target for ranking queries.
type resultRow struct {
	ID         int64   `db:"id"`
	Content    string  `db:"content"`
	Similarity float64 `db:"similarity"`
}

// Insert persists one document and returns it with the store-assigned id
// and timestamp.
func (r *Repo) Insert(
	ctx context.Context, content string, embedding []float32, metadata map[string]string,
) (domain.Document, error) {
	var meta any
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return domain.Document{}, fmt.Errorf("marshal metadata: %w: %w", err, domain.ErrUnexpected)
		}
		meta = data
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	const q = `
		INSERT INTO documents (content, embedding, metadata)
		VALUES ($1, $2::vector, $3)
		RETURNING id, created_at`

	var row insertedRow
	if err := r.db.GetContext(ctx, &row, q, content, pg.VectorLiteral(embedding), meta); err != nil {
		return domain.Document{}, classifyStoreError("insert document", err)
	}

	return domain.Document{
		ID:        row.ID,
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: row.CreatedAt,
	}, nil
}

// Delete removes a document by id. A missing id is a logical not-found
// result (false, nil), not an error.
func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, classifyStoreError("delete document", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, classifyStoreError("delete document", err)
	}
	return affected > 0, nil
}

// RankBySimilarity returns the limit closest stored documents to the query
// vector by cosine distance. Truncation happens server-side in the LIMIT
// clause; ties are broken by ascending id so repeated queries over an
// unchanged store return identical output.
func (r *Repo) RankBySimilarity(
	ctx context.Context, query []float32, limit int,
) ([]domain.SearchResult, error) {
	if err := domain.ValidateQueryVector(query); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1, got %d: %w", limit, domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	const q = `
		SELECT id, content, 1 - (embedding <=> $1::vector) AS similarity
		FROM documents
		ORDER BY embedding <=> $1::vector, id
		LIMIT $2`

	var rows []resultRow
	if err := r.db.SelectContext(ctx, &rows, q, pg.VectorLiteral(query), limit); err != nil {
		return nil, classifyStoreError("rank documents", err)
	}

	results := make([]domain.SearchResult, len(rows))
	for i, row := range rows {
		results[i] = domain.SearchResult{
			ID:         row.ID,
			Content:    row.Content,
			Similarity: row.Similarity,
		}
	}
	return results, nil
}

// Ping checks store connectivity for health reporting.
func (r *Repo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return classifyStoreError("ping store", err)
	}
	return nil
}

// classifyStoreError maps store failures into the shared taxonomy:
// deadline overruns are ErrTimeout, everything else ErrPersistence.
func classifyStoreError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: no row returned: %w", op, domain.ErrPersistence)
	}
	return fmt.Errorf("%s: %w: %w", op, err, domain.ErrPersistence)
}
