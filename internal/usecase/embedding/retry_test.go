package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

// scriptedEmbedder fails with errs[i] on call i, then succeeds.
type scriptedEmbedder struct {
	errs  []error
	calls int
}

func (s *scriptedEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return domain.BatchEmbeddingResult{}, s.errs[i]
	}
	out := make([][]float32, len(texts))
	for j := range out {
		out[j] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestRetry_ModelLoadingThenSuccess(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{domain.ErrModelLoading, domain.ErrModelLoading}}
	r := NewRetryEmbedder(inner, fastRetryConfig(3), nil)

	res, err := r.BatchEmbed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
	if len(res.Embeddings) != 1 {
		t.Errorf("expected 1 vector, got %d", len(res.Embeddings))
	}
}

func TestRetry_TimeoutRetried(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{domain.ErrTimeout}}
	r := NewRetryEmbedder(inner, fastRetryConfig(2), nil)

	if _, err := r.BatchEmbed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", inner.calls)
	}
}

func TestRetry_RemoteErrorNotRetried(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{domain.NewRemoteError(401, "bad token")}}
	r := NewRetryEmbedder(inner, fastRetryConfig(5), nil)

	_, err := r.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 attempt for a permanent error, got %d", inner.calls)
	}
}

func TestRetry_AttemptsExhausted(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{
		domain.ErrModelLoading, domain.ErrModelLoading, domain.ErrModelLoading,
	}}
	r := NewRetryEmbedder(inner, fastRetryConfig(3), nil)

	_, err := r.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrModelLoading) {
		t.Fatalf("expected ErrModelLoading after exhaustion, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{
		domain.ErrModelLoading, domain.ErrModelLoading, domain.ErrModelLoading, domain.ErrModelLoading,
	}}
	cfg := RetryConfig{MaxAttempts: 10, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}
	r := NewRetryEmbedder(inner, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.BatchEmbed(ctx, []string{"a"})
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
	if inner.calls >= 10 {
		t.Errorf("retries should stop on context cancellation, got %d calls", inner.calls)
	}
}

func TestRetry_SingleEmbedDelegates(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{domain.ErrModelLoading}}
	r := NewRetryEmbedder(inner, fastRetryConfig(2), nil)

	res, err := r.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 2 {
		t.Errorf("unexpected dims: %d", len(res.Embedding))
	}
}
