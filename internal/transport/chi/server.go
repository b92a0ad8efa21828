// Package chi exposes the retrieval pipeline over HTTP: a raw search
// endpoint, the chat endpoint that drives retrieval-augmented replies,
// and the usual health and metrics surfaces.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/domain"
	logpkg "github.com/folio-cloud/foliorag/internal/logger"
	"github.com/folio-cloud/foliorag/internal/repository/convlog"
	openaiT "github.com/folio-cloud/foliorag/internal/transport/openai"
	"github.com/folio-cloud/foliorag/internal/usecase/health"
)

// historyTurns caps how much stored conversation is replayed per chat call.
const historyTurns = 10

// Retriever runs one hybrid search.
type Retriever interface {
	Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchOutcome, error)
}

// Assembler packs retrieved chunks into a prompt-ready context block.
type Assembler interface {
	Assemble(chunks []domain.Chunk) domain.AssembledContext
}

// Completer generates the chat reply.
type Completer interface {
	Complete(ctx context.Context, retrieved string, history []openaiT.Message, question string) (string, error)
}

// Embedder vectorizes chat turns before they are logged, so later sessions
// can recall them by similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ConversationLog records and replays chat turns.
type ConversationLog interface {
	Append(ctx context.Context, sessionID, role, body string, vector []float32) (*convlog.Turn, error)
	Recent(ctx context.Context, sessionID string, n int) ([]convlog.Turn, error)
}

// CacheInvalidator drops memoized search outcomes after re-ingestion.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) int
}

// HealthChecker aggregates component probes.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Server is the HTTP API server.
type Server struct {
	retriever  Retriever
	assembler  Assembler
	completer  Completer
	embedder   Embedder
	log        ConversationLog
	health     HealthChecker
	cacheAdmin CacheInvalidator // nil when result caching is off
	logger     *zap.Logger
}

// NewServer creates an HTTP API server. cacheAdmin may be nil; the
// invalidation route is only mounted when a cache is configured.
func NewServer(
	retriever Retriever,
	assembler Assembler,
	completer Completer,
	embedder Embedder,
	log ConversationLog,
	healthSvc HealthChecker,
	cacheAdmin CacheInvalidator,
	logger *zap.Logger,
) *Server {
	return &Server{
		retriever:  retriever,
		assembler:  assembler,
		completer:  completer,
		embedder:   embedder,
		log:        log,
		health:     healthSvc,
		cacheAdmin: cacheAdmin,
		logger:     logger,
	}
}

// Register mounts the API routes on r. Middleware is the caller's business.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/search", s.handleSearch)
	r.Post("/v1/chat", s.handleChat)
	if s.cacheAdmin != nil {
		r.Delete("/v1/search/cache", s.handleCacheInvalidate)
	}
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// reqLogger prefers the request-scoped logger installed by middleware, which
// carries the request id and route fields.
func (s *Server) reqLogger(ctx context.Context) *zap.Logger {
	if l, ok := logpkg.TryFromContext(ctx); ok {
		return l
	}
	return s.logger
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	outcome, err := s.retriever.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// InvalidateResponse is the reply of DELETE /v1/search/cache.
type InvalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	n := s.cacheAdmin.Invalidate(r.Context())
	s.reqLogger(r.Context()).Info("Result cache invalidated", zap.Int("entries", n))
	writeJSON(w, http.StatusOK, InvalidateResponse{Invalidated: n})
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	SessionID string   `json:"session_id,omitempty"` // empty starts a new session
	Message   string   `json:"message"`
	Kinds     []string `json:"kinds,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// ChatResponse is the reply of POST /v1/chat.
type ChatResponse struct {
	SessionID string                  `json:"session_id"`
	Reply     string                  `json:"reply"`
	Context   domain.AssembledContext `json:"context"`
	Outcome   *domain.SearchOutcome   `json:"outcome,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		req.SessionID = ulid.Make().String()
	}

	ctx := r.Context()

	outcome, err := s.retriever.Search(ctx, &domain.SearchRequest{
		Query:              req.Message,
		Kinds:              req.Kinds,
		Limit:              req.Limit,
		SearchConversation: true,
	})
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	assembled := s.assembler.Assemble(outcome.Chunks)
	history := s.history(ctx, req.SessionID)

	reply, err := s.completer.Complete(ctx, assembled.Content, history, req.Message)
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	// Log both turns with their vectors so similarity recall can reach them.
	// A failed write or embed loses recall for later sessions only.
	log := s.reqLogger(ctx)
	if _, err := s.log.Append(ctx, req.SessionID, "user", req.Message, s.turnVector(ctx, req.Message)); err != nil {
		log.Warn("Failed to log user turn", zap.Error(err))
	}
	if _, err := s.log.Append(ctx, req.SessionID, "assistant", reply, s.turnVector(ctx, reply)); err != nil {
		log.Warn("Failed to log assistant turn", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID: req.SessionID,
		Reply:     reply,
		Context:   assembled,
		Outcome:   outcome,
	})
}

// turnVector embeds one chat turn for later similarity recall. Failures are
// soft; the turn is still logged, it just cannot be recalled by vector.
// Hash-projection fallback vectors never match a real query embedding, so
// they are not stored either.
func (s *Server) turnVector(ctx context.Context, text string) []float32 {
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.reqLogger(ctx).Warn("Failed to embed chat turn", zap.Error(err))
		return nil
	}
	if emb.Fallback {
		return nil
	}
	return emb.Embedding
}

func (s *Server) history(ctx context.Context, sessionID string) []openaiT.Message {
	turns, err := s.log.Recent(ctx, sessionID, historyTurns)
	if err != nil {
		s.reqLogger(ctx).Warn("Failed to load conversation history",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	msgs := make([]openaiT.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, openaiT.Message{Role: t.Role, Content: t.Body})
	}
	return msgs
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleDomainError maps sentinel errors to HTTP statuses. Unknown errors
// return 500 with a generic message; the detail stays in the log.
func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "Embedding rate limit exceeded")
	case errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, "embedding_unavailable", "Embedding provider unavailable")
	case errors.Is(err, domain.ErrCompletionProviderError):
		writeError(w, http.StatusBadGateway, "completion_unavailable", "Completion provider unavailable")
	default:
		s.reqLogger(ctx).Error("Unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
