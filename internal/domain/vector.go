package domain

import (
	"fmt"
	"math"
)

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// ValidateQueryVector rejects vectors that cannot be ranked: empty or
// zero-norm (cosine distance against them is undefined).
func ValidateQueryVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("query vector is empty: %w", ErrValidation)
	}
	if Norm(v) == 0 {
		return fmt.Errorf("query vector has zero norm: %w", ErrValidation)
	}
	return nil
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 for zero-norm inputs; callers are expected to reject those
// via ValidateQueryVector first.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
