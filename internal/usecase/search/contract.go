package search

import (
	"context"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

// Ranker defines the storage contract for similarity queries.
type Ranker interface {
	RankBySimilarity(ctx context.Context, query []float32, limit int) ([]domain.SearchResult, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
