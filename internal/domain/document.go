package domain

import (
	"fmt"
	"strings"
	"time"
)

// Document is a stored text with its embedding. ID and CreatedAt are
// assigned by the store at insert; rows are never mutated in place.
type Document struct {
	ID        int64
	Content   string
	Embedding []float32
	Metadata  map[string]string
	CreatedAt time.Time
}

// SearchResult is one ranked hit for a similarity query, computed per
// query and never persisted. Similarity is 1 - cosine distance, so higher
// is more similar.
type SearchResult struct {
	ID         int64
	Content    string
	Similarity float64
}

// ValidateContent checks that text is non-empty after trimming.
func ValidateContent(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text must not be empty: %w", ErrValidation)
	}
	return nil
}
