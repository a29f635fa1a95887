// Package chi exposes the HTTP API: document ingestion, source listing,
// and retrieval-augmented chat.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ragchat/ragchat/internal/domain"
	chatuc "github.com/ragchat/ragchat/internal/usecase/chat"
	healthuc "github.com/ragchat/ragchat/internal/usecase/health"
	ingestuc "github.com/ragchat/ragchat/internal/usecase/ingest"
)

// ErrorCode identifies an error class in API responses.
type ErrorCode string

const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeVectorDimMismatch ErrorCode = "vector_dim_mismatch"
	CodeEmbeddingProvider ErrorCode = "embedding_provider_error"
	CodeChatProvider      ErrorCode = "chat_provider_error"
	CodeIndexQuery        ErrorCode = "index_query_error"
	CodeTimeout           ErrorCode = "timeout"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers for the chat pipeline.
type Server struct {
	ingest        *ingestuc.Service
	chat          *chatuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(ingest *ingestuc.Service, chat *chatuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		ingest: ingest,
		chat:   chat,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrChatProvider, http.StatusBadGateway, CodeChatProvider),
		sentinelHandler(domain.ErrIndexQuery, http.StatusBadGateway, CodeIndexQuery),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout),
	}
	return s
}

// RegisterRoutes mounts the API routes on the given router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.IngestDocument)
		r.Get("/sources", s.ListSources)
		r.Post("/chat", s.Chat)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// IngestDocumentRequest is the body of POST /api/v1/documents.
type IngestDocumentRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// IngestDocumentResponse reports the ingestion outcome.
type IngestDocumentResponse struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// IngestDocument handles POST /api/v1/documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req IngestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Source == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "source is required")
		return
	}

	count, err := s.ingest.Ingest(r.Context(), req.Source, req.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, IngestDocumentResponse{
		Source: req.Source,
		Chunks: count,
	})
}

// SourcesResponse lists the ingested source ids.
type SourcesResponse struct {
	Sources []string `json:"sources"`
}

// ListSources handles GET /api/v1/sources.
func (s *Server) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.ingest.Sources(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if sources == nil {
		sources = []string{}
	}

	writeJSON(w, http.StatusOK, SourcesResponse{Sources: sources})
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Question       string   `json:"question"`
	ConversationID string   `json:"conversationId"`
	Sources        []string `json:"sources,omitempty"`
}

// UsedChunk identifies a chunk that backed the answer.
type UsedChunk struct {
	Source string `json:"source"`
	Seq    int    `json:"seq"`
	Text   string `json:"text"`
}

// ChatResponse carries the answer and its provenance.
type ChatResponse struct {
	Answer     string      `json:"answer"`
	UsedChunks []UsedChunk `json:"usedChunks"`
}

// Chat handles POST /api/v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	filter := domain.Filter{Sources: req.Sources}
	answer, err := s.chat.Ask(r.Context(), req.Question, req.ConversationID, filter)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	used := make([]UsedChunk, 0, len(answer.UsedChunks))
	for _, c := range answer.UsedChunks {
		used = append(used, UsedChunk{Source: c.SourceID, Seq: c.SequenceIndex, Text: c.Text})
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Answer:     answer.Text,
		UsedChunks: used,
	})
}

// HealthResponse reports component health.
type HealthResponse struct {
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
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
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

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyInput,
		domain.ErrInvalidArgument,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingProvider,
		domain.ErrChatProvider,
		domain.ErrIndexQuery,
		domain.ErrTimeout,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
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
