// Package embedding holds provider-agnostic embedding decorators.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

// RetryConfig bounds the retry loop around a flaky provider.
type RetryConfig struct {
	MaxAttempts     int // total attempts including the first call
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the reference retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// RetryEmbedder wraps a BatchEmbedder with exponential backoff. Only
// model-loading and timeout failures are retried; validation, remote and
// unexpected errors surface immediately. The provider itself never retries,
// so this decorator is the single place that owns the policy.
type RetryEmbedder struct {
	inner  domain.BatchEmbedder
	config RetryConfig
	logger *zap.Logger
}

// NewRetryEmbedder creates a retrying decorator.
func NewRetryEmbedder(inner domain.BatchEmbedder, cfg RetryConfig, logger *zap.Logger) *RetryEmbedder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultRetryConfig().InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultRetryConfig().MaxInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryEmbedder{inner: inner, config: cfg, logger: logger}
}

// BatchEmbed implements domain.BatchEmbedder with retries.
func (r *RetryEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var result domain.BatchEmbeddingResult

	operation := func() error {
		res, err := r.inner.BatchEmbed(ctx, texts)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.config.InitialInterval
	bo.MaxInterval = r.config.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by attempt count and context, not wall clock

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(r.config.MaxAttempts-1)),
		ctx,
	)

	notify := func(err error, next time.Duration) {
		r.logger.Warn("Embedding attempt failed, retrying",
			zap.Duration("next_attempt_in", next),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch: %w", err)
	}
	return result, nil
}

// Embed implements domain.Embedder via a single-element batch.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := r.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// retryable reports whether a failure is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrModelLoading) || errors.Is(err, domain.ErrTimeout)
}
