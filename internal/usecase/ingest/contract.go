package ingest

import (
	"context"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

// Store defines the storage contract for document lifecycle operations.
type Store interface {
	Insert(
		ctx context.Context, content string, embedding []float32, metadata map[string]string,
	) (domain.Document, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Embedder vectorizes batches of texts in a single provider call.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
