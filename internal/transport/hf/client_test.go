package hf

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlas-cloud/vecsearch/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &Config{
		Token:      "hf_test",
		BaseURL:    srv.URL,
		Model:      "BAAI/bge-small-en-v1.5",
		Dimensions: 3,
	}
	for _, o := range opts {
		o(cfg)
	}
	return NewClient(cfg)
}

func vectorsHandler(t *testing.T, gotReq *embeddingRequest) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		vectors := make([][]float32, len(gotReq.Inputs))
		for i := range vectors {
			vectors[i] = []float32{float32(i), 0, 1}
		}
		_ = json.NewEncoder(w).Encode(vectors)
	}
}

func TestBatchEmbed_OrderAndDimensions(t *testing.T) {
	var gotReq embeddingRequest
	c := newTestClient(t, vectorsHandler(t, &gotReq))

	texts := []string{"first", "second", "third"}
	res, err := c.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Embeddings) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(res.Embeddings))
	}
	for i, v := range res.Embeddings {
		if len(v) != 3 {
			t.Errorf("vector %d has %d dims, want 3", i, len(v))
		}
		// the stub encodes the input position into the first component
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: first component %f", i, v[0])
		}
	}
	if len(gotReq.Inputs) != 3 || gotReq.Inputs[1] != "second" {
		t.Errorf("unexpected request inputs: %v", gotReq.Inputs)
	}
}

func TestBatchEmbed_RequestBody(t *testing.T) {
	var gotReq embeddingRequest
	c := newTestClient(t, vectorsHandler(t, &gotReq), func(cfg *Config) {
		cfg.WaitForModel = true
		cfg.UseCache = true
	})

	if _, err := c.BatchEmbed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotReq.Options.WaitForModel {
		t.Error("wait_for_model not set in request body")
	}
	if !gotReq.Options.UseCache {
		t.Error("use_cache not set in request body")
	}
}

func TestBatchEmbed_Auth(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0, 0}})
	})

	if _, err := c.BatchEmbed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer hf_test" {
		t.Errorf("unexpected authorization header: %q", gotAuth)
	}
}

func TestBatchEmbed_ModelLoading(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":          "Model BAAI/bge-small-en-v1.5 is currently loading",
			"estimated_time": 20.0,
		})
	})

	_, err := c.BatchEmbed(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrModelLoading) {
		t.Fatalf("expected ErrModelLoading, got %v", err)
	}
	if errors.Is(err, domain.ErrRemote) {
		t.Error("503 must not be classified as ErrRemote")
	}
}

func TestBatchEmbed_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0, 0}})
	}, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
	})

	_, err := c.BatchEmbed(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if errors.Is(err, domain.ErrModelLoading) {
		t.Error("timeout must be distinguishable from model loading")
	}
}

func TestBatchEmbed_RemoteError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid token"})
	})

	_, err := c.BatchEmbed(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	var rerr *domain.RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *domain.RemoteError, got %T", err)
	}
	if rerr.Status != http.StatusUnauthorized {
		t.Errorf("unexpected status: %d", rerr.Status)
	}
	if rerr.Message != "invalid token" {
		t.Errorf("unexpected message: %q", rerr.Message)
	}
}

func TestBatchEmbed_CardinalityMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0, 0}}) // one vector for two inputs
	})

	_, err := c.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrUnexpected) {
		t.Fatalf("expected ErrUnexpected, got %v", err)
	}
}

func TestBatchEmbed_DimensionMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0}}) // 2 dims, client expects 3
	})

	_, err := c.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrUnexpected) {
		t.Fatalf("expected ErrUnexpected, got %v", err)
	}
}

func TestBatchEmbed_DecodeFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := c.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrUnexpected) {
		t.Fatalf("expected ErrUnexpected, got %v", err)
	}
}

func TestEmbed_Single(t *testing.T) {
	var gotReq embeddingRequest
	c := newTestClient(t, vectorsHandler(t, &gotReq))

	res, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 {
		t.Errorf("unexpected dimensions: %d", len(res.Embedding))
	}
	if len(gotReq.Inputs) != 1 || gotReq.Inputs[0] != "hello" {
		t.Errorf("unexpected request inputs: %v", gotReq.Inputs)
	}
}
