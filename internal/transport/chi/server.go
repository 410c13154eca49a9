// Package chi is the HTTP transport: request decoding, response encoding
// and the mapping from domain sentinels to status codes.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atlas-cloud/vecsearch/internal/domain"
	healthuc "github.com/atlas-cloud/vecsearch/internal/usecase/health"
	"github.com/atlas-cloud/vecsearch/internal/usecase/ingest"
	searchuc "github.com/atlas-cloud/vecsearch/internal/usecase/search"
)

// ErrorResponse is the JSON error envelope for every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeValidationFailed = "validation_failed"
	CodeUnauthorized     = "unauthorized"
	CodeNotFound         = "not_found"
	CodeModelLoading     = "model_loading"
	CodeTimeout          = "timeout"
	CodeProviderError    = "provider_error"
	CodeInternalError    = "internal_error"
)

// modelLoadingRetryAfter is the Retry-After hint on 503 replies, matching
// the typical cold-start time of a small sentence-transformer.
const modelLoadingRetryAfter = 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search, ingest and health usecases over HTTP.
type Server struct {
	search        *searchuc.Service
	ingest        *ingest.Service
	health        *healthuc.Service
	model         string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. model is echoed in embedding
// responses so clients can detect model changes.
func NewServer(
	search *searchuc.Service,
	ingestSvc *ingest.Service,
	health *healthuc.Service,
	model string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search: search,
		ingest: ingestSvc,
		health: health,
		model:  model,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		modelLoadingHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout),
		sentinelHandler(domain.ErrRemote, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrPersistence, http.StatusInternalServerError, CodeInternalError),
	}
	return s
}

// RegisterRoutes mounts every endpoint on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Post("/embedding", s.EmbedOne)
	r.Post("/embeddings", s.EmbedMany)
	r.Post("/documents", s.IngestDocuments)
	r.Delete("/documents/{id}", s.DeleteDocument)
	r.Post("/search", s.Search)
}

type embedOneRequest struct {
	Text string `json:"text"`
}

type embedOneResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Tokens    int       `json:"tokens,omitempty"`
}

// EmbedOne handles POST /embedding.
func (s *Server) EmbedOne(w http.ResponseWriter, r *http.Request) {
	var req embedOneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.ingest.EmbedOne(r.Context(), req.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, embedOneResponse{
		Embedding: result.Embedding,
		Model:     s.model,
		Tokens:    result.TotalTokens,
	})
}

type embedManyRequest struct {
	Texts []string `json:"texts"`
}

type embedManyResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
	Tokens     int         `json:"tokens,omitempty"`
}

// EmbedMany handles POST /embeddings.
func (s *Server) EmbedMany(w http.ResponseWriter, r *http.Request) {
	var req embedManyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.ingest.EmbedMany(r.Context(), req.Texts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, embedManyResponse{
		Embeddings: result.Embeddings,
		Model:      s.model,
		Tokens:     result.TotalTokens,
	})
}

type ingestRequest struct {
	Texts []string `json:"texts"`
}

type ingestResponse struct {
	IDs []*int64 `json:"ids"`
}

// IngestDocuments handles POST /documents. The response carries one slot
// per input text, in input order; a null slot means the insert for that
// text failed after a successful embedding.
func (s *Server) IngestDocuments(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	results, err := s.ingest.Ingest(r.Context(), req.Texts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ids := make([]*int64, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}

	writeJSON(w, http.StatusCreated, ingestResponse{IDs: ids})
}

// DeleteDocument handles DELETE /documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "document id must be an integer")
		return
	}

	removed, err := s.ingest.Delete(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, CodeNotFound,
			fmt.Sprintf("document %d not found", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// searchRequest distinguishes an absent limit (nil, use the service
// default) from an explicit zero, which is rejected as out of range.
type searchRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit"`
}

type searchResultItem struct {
	ID         int64   `json:"id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type searchResponse struct {
	Results []searchResultItem `json:"results"`
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	limit := s.search.DefaultLimit()
	if req.Limit != nil {
		limit = *req.Limit
	}

	results, err := s.search.Search(r.Context(), req.Query, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i, res := range results {
		items[i] = searchResultItem{
			ID:         res.ID,
			Content:    res.Content,
			Similarity: res.Similarity,
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: items})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-facing message without exposing
// internals. Validation errors keep their full chain text so the caller
// learns what to fix; everything else collapses to the sentinel.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrModelLoading,
		domain.ErrTimeout,
		domain.ErrRemote,
		domain.ErrPersistence,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// modelLoadingHandler handles ErrModelLoading with a Retry-After hint.
func modelLoadingHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrModelLoading) {
		return false
	}
	w.Header().Set("Retry-After", strconv.Itoa(modelLoadingRetryAfter))
	writeError(w, http.StatusServiceUnavailable, CodeModelLoading, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
