// Package ingest orchestrates document intake: validate the whole batch,
// vectorize it in a single provider call, then insert row by row with
// per-item error reporting.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

// MaxBatchSize is the default maximum number of texts per ingest request.
const MaxBatchSize = 100

// IDResult reports the outcome for one text in an ingest batch. A nil ID
// means the insert for that text failed after a successful embedding.
type IDResult struct {
	ID  *int64
	Err error
}

// Service handles the document lifecycle: batch ingestion and deletion.
type Service struct {
	store        Store
	embed        Embedder
	model        string
	maxBatchSize int
	logger       *zap.Logger
}

// New creates an ingest service. model is recorded in document metadata so
// rows embedded under different models stay distinguishable.
func New(store Store, embed Embedder, model string, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		embed:        embed,
		model:        model,
		maxBatchSize: MaxBatchSize,
		logger:       logger,
	}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Ingest embeds texts in one provider call and inserts one row per text.
// The whole batch is validated before anything leaves the process; a failed
// batch embedding aborts the call. After embedding succeeds, one failed
// insert does not abort its siblings: the result slot keeps a nil id and
// the error, and the remaining texts are still inserted.
func (s *Service) Ingest(ctx context.Context, texts []string) ([]IDResult, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("batch must not be empty: %w", domain.ErrValidation)
	}
	if len(texts) > s.maxBatchSize {
		return nil, fmt.Errorf(
			"batch size %d exceeds %d: %w", len(texts), s.maxBatchSize, domain.ErrValidation,
		)
	}
	for i, text := range texts {
		if err := domain.ValidateContent(text); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}

	embResult, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("vectorize batch: %w", err)
	}
	if len(embResult.Embeddings) != len(texts) {
		return nil, fmt.Errorf(
			"provider returned %d embeddings for %d texts: %w",
			len(embResult.Embeddings), len(texts), domain.ErrUnexpected,
		)
	}

	metadata := map[string]string{"model": s.model}
	results := make([]IDResult, len(texts))
	for i, text := range texts {
		doc, err := s.store.Insert(ctx, text, embResult.Embeddings[i], metadata)
		if err != nil {
			s.logger.Warn("Failed to insert document",
				zap.Int("index", i), zap.Error(err))
			results[i] = IDResult{Err: err}
			continue
		}
		id := doc.ID
		results[i] = IDResult{ID: &id}
	}
	return results, nil
}

// Delete removes a document by id. A missing id reports (false, nil) so
// the transport can answer 404 instead of 500.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return removed, nil
}

// EmbedOne vectorizes a single text without persisting anything.
func (s *Service) EmbedOne(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := domain.ValidateContent(text); err != nil {
		return domain.EmbeddingResult{}, err
	}

	result, err := s.embed.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("vectorize text: %w", err)
	}
	if len(result.Embeddings) != 1 {
		return domain.EmbeddingResult{}, fmt.Errorf(
			"provider returned %d embeddings for 1 text: %w",
			len(result.Embeddings), domain.ErrUnexpected,
		)
	}
	return domain.EmbeddingResult{
		Embedding:    result.Embeddings[0],
		PromptTokens: result.PromptTokens,
		TotalTokens:  result.TotalTokens,
	}, nil
}

// EmbedMany vectorizes texts without persisting anything. The same batch
// bounds as Ingest apply.
func (s *Service) EmbedMany(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"batch must not be empty: %w", domain.ErrValidation,
		)
	}
	if len(texts) > s.maxBatchSize {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"batch size %d exceeds %d: %w", len(texts), s.maxBatchSize, domain.ErrValidation,
		)
	}
	for i, text := range texts {
		if err := domain.ValidateContent(text); err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("text %d: %w", i, err)
		}
	}

	result, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("vectorize batch: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"provider returned %d embeddings for %d texts: %w",
			len(result.Embeddings), len(texts), domain.ErrUnexpected,
		)
	}
	return result, nil
}
