// Package memory is an in-process document store with exact cosine ranking.
// It backs the "memory" database driver for local development and tests;
// it is not meant to hold production-sized corpora.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

// Store keeps documents in a map guarded by a mutex. Ids are assigned
// from a monotonically increasing counter and never reused.
type Store struct {
	mu     sync.RWMutex
	docs   map[int64]domain.Document
	nextID int64
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[int64]domain.Document), nextID: 1}
}

// Insert persists one document and returns it with the assigned id.
func (s *Store) Insert(
	_ context.Context, content string, embedding []float32, metadata map[string]string,
) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := domain.Document{
		ID:        s.nextID,
		Content:   content,
		Embedding: append([]float32(nil), embedding...),
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	s.docs[doc.ID] = doc
	s.nextID++
	return doc, nil
}

// Delete removes a document by id. A missing id is a logical not-found
// result (false, nil), not an error.
func (s *Store) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return false, nil
	}
	delete(s.docs, id)
	return true, nil
}

// RankBySimilarity scores every stored document against the query vector
// and returns the limit highest-scoring ones, ties broken by ascending id.
func (s *Store) RankBySimilarity(
	_ context.Context, query []float32, limit int,
) ([]domain.SearchResult, error) {
	if err := domain.ValidateQueryVector(query); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1, got %d: %w", limit, domain.ErrValidation)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.SearchResult, 0, len(s.docs))
	for _, doc := range s.docs {
		// Same failure mode as the vector column rejecting a query of the
		// wrong dimensionality.
		if len(doc.Embedding) != len(query) {
			return nil, fmt.Errorf(
				"rank documents: document %d has %d dimensions, query has %d: %w",
				doc.ID, len(doc.Embedding), len(query), domain.ErrPersistence,
			)
		}
		sim := domain.CosineSimilarity(query, doc.Embedding)
		results = append(results, domain.SearchResult{
			ID:         doc.ID,
			Content:    doc.Content,
			Similarity: sim,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Ping always succeeds; the store lives in the same process.
func (s *Store) Ping(_ context.Context) error {
	return nil
}
