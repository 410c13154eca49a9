// Package hf is the embedding provider backed by the HuggingFace
// Inference API (pipeline/feature-extraction).
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-cloud/vecsearch/internal/domain"
	"github.com/atlas-cloud/vecsearch/internal/metrics"
)

const (
	// DefaultBaseURL is the public HuggingFace inference endpoint.
	DefaultBaseURL = "https://api-inference.huggingface.co"
	// DefaultTimeout bounds one embedding round-trip.
	DefaultTimeout = 30 * time.Second

	providerName = "huggingface"
)

// Config holds the HuggingFace client settings.
type Config struct {
	Token      string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	// WaitForModel asks the provider to block until the model is warm
	// instead of answering 503. Off by default: the client fails fast with
	// domain.ErrModelLoading and the retry decorator owns retrying.
	WaitForModel bool
	// UseCache enables the provider-side inference cache.
	UseCache bool
	// HTTPClient overrides the transport (tests). Timeout is still applied
	// per request via context.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client implements domain.Embedder and domain.BatchEmbedder against the
// HuggingFace Inference API. It performs no retries itself.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	model        string
	dimensions   int
	timeout      time.Duration
	waitForModel bool
	useCache     bool
	logger       *zap.Logger
}

// NewClient creates a HuggingFace embedding client.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      baseURL,
		token:        cfg.Token,
		model:        cfg.Model,
		dimensions:   cfg.Dimensions,
		timeout:      timeout,
		waitForModel: cfg.WaitForModel,
		useCache:     cfg.UseCache,
		logger:       logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Dimensions returns the configured vector dimensionality.
func (c *Client) Dimensions() int { return c.dimensions }

type embeddingRequest struct {
	Inputs  []string         `json:"inputs"`
	Options embeddingOptions `json:"options"`
}

type embeddingOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

// errorBody is the provider's JSON error envelope.
type errorBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// BatchEmbed implements domain.BatchEmbedder. One POST per invocation;
// output order matches input order (verified, not assumed).
func (c *Client) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	start := time.Now()

	vectors, err := c.requestEmbeddings(ctx, texts)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, c.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, c.model, errorKind(err)).Inc()
		return domain.BatchEmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, c.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, c.model).Observe(duration.Seconds())
	metrics.EmbeddingBatchSize.WithLabelValues(providerName, c.model).Observe(float64(len(texts)))

	c.logger.Debug("Embedding request completed",
		zap.String("model", c.model),
		zap.Int("batch_size", len(texts)),
		zap.Duration("duration", duration),
	)

	// The HF API does not report token usage.
	return domain.BatchEmbeddingResult{Embeddings: vectors}, nil
}

// Embed implements domain.Embedder via a single-element batch.
func (c *Client) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := c.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

// HealthCheck embeds a probe text to verify the model answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.Embed(ctx, "ping"); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}

func (c *Client) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Inputs: texts,
		Options: embeddingOptions{
			WaitForModel: c.waitForModel,
			UseCache:     c.useCache,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w: %w", err, domain.ErrUnexpected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/pipeline/feature-extraction/%s", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w: %w", err, domain.ErrUnexpected)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.classifyStatus(resp)
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w: %w", err, domain.ErrUnexpected)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf(
			"provider returned %d vectors for %d inputs: %w",
			len(vectors), len(texts), domain.ErrUnexpected,
		)
	}
	if c.dimensions > 0 {
		for i, v := range vectors {
			if len(v) != c.dimensions {
				return nil, fmt.Errorf(
					"vector %d has %d dimensions, expected %d: %w",
					i, len(v), c.dimensions, domain.ErrUnexpected,
				)
			}
		}
	}

	return vectors, nil
}

// classifyStatus maps a non-success provider response into the error taxonomy.
func (c *Client) classifyStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body errorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = string(raw)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		c.logger.Warn("Embedding model is loading",
			zap.String("model", c.model),
			zap.Float64("estimated_time_sec", body.EstimatedTime),
		)
		return fmt.Errorf("%s: %w", msg, domain.ErrModelLoading)
	}

	return domain.NewRemoteError(resp.StatusCode, msg)
}

// classifyTransportError maps network-level failures: deadline overruns
// surface as ErrTimeout, everything else as ErrUnexpected.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request: %w", domain.ErrTimeout)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("embedding request: %w", domain.ErrTimeout)
	}
	return fmt.Errorf("embedding request: %w: %w", err, domain.ErrUnexpected)
}

// errorKind labels an error for the metrics counter.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrModelLoading):
		return "model_loading"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrRemote):
		return "remote"
	default:
		return "unexpected"
	}
}
