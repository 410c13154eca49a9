// Package search orchestrates semantic search: one embedding call for the
// query text, one ranked store query, results passed through unchanged.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

// Limits bounds the result count a single search may request.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits matches the public API contract.
var DefaultLimits = Limits{Default: 5, Max: 20}

// Service handles semantic search over the document store.
type Service struct {
	ranker Ranker
	embed  Embedder
	limits Limits
}

// New creates a search service. Zero-valued limits fall back to DefaultLimits.
func New(ranker Ranker, embed Embedder, limits Limits) *Service {
	if limits.Default <= 0 {
		limits.Default = DefaultLimits.Default
	}
	if limits.Max <= 0 {
		limits.Max = DefaultLimits.Max
	}
	return &Service{ranker: ranker, embed: embed, limits: limits}
}

// DefaultLimit is the result count callers should use when the client
// did not request one.
func (s *Service) DefaultLimit() int {
	return s.limits.Default
}

// Search embeds the query text and returns the limit most similar stored
// documents, best first. Any limit outside [1, max] is a validation error,
// zero included; callers that want the default ask DefaultLimit themselves.
// The embedding happens exactly once per call and only after the input
// passes validation.
func (s *Service) Search(
	ctx context.Context, query string, limit int,
) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty: %w", domain.ErrValidation)
	}

	if limit < 1 || limit > s.limits.Max {
		return nil, fmt.Errorf(
			"limit must be between 1 and %d, got %d: %w",
			s.limits.Max, limit, domain.ErrValidation,
		)
	}

	embResult, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	results, err := s.ranker.RankBySimilarity(ctx, embResult.Embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("rank documents: %w", err)
	}
	return results, nil
}
