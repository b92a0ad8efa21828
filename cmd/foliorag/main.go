package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/config"
	dbRedis "github.com/folio-cloud/foliorag/internal/db/redis"
	"github.com/folio-cloud/foliorag/internal/domain"
	logpkg "github.com/folio-cloud/foliorag/internal/logger"
	"github.com/folio-cloud/foliorag/internal/metrics"
	"github.com/folio-cloud/foliorag/internal/repository/convlog"
	"github.com/folio-cloud/foliorag/internal/repository/embcache"
	"github.com/folio-cloud/foliorag/internal/repository/lexical"
	"github.com/folio-cloud/foliorag/internal/repository/resultcache"
	"github.com/folio-cloud/foliorag/internal/repository/semantic"
	chiTransport "github.com/folio-cloud/foliorag/internal/transport/chi"
	openaiT "github.com/folio-cloud/foliorag/internal/transport/openai"
	"github.com/folio-cloud/foliorag/internal/usecase/contextbuild"
	embeddinguc "github.com/folio-cloud/foliorag/internal/usecase/embedding"
	healthuc "github.com/folio-cloud/foliorag/internal/usecase/health"
	"github.com/folio-cloud/foliorag/internal/usecase/retrieval"
	"github.com/folio-cloud/foliorag/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting foliorag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	embedder, provider := buildEmbedder(&cfg, store, logger)
	logger.Info("Embedder chain created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("fallback", cfg.Embedding.Fallback),
	)

	semanticRepo := semantic.New(store, cfg.Storage.ChunkIndex, cfg.Storage.ConversationIndex, logger)
	lexicalRepo := lexical.New(store, cfg.Storage.ChunkIndex, cfg.Storage.FactsIndex, logger)
	convLog := convlog.New(store, cfg.Storage.KeyPrefix, 0, logger)

	var outcomeCache retrieval.OutcomeCache
	var cacheAdmin chiTransport.CacheInvalidator
	if cfg.Search.ResultCacheTTLSec > 0 {
		rc := resultcache.New(
			store, cfg.Storage.KeyPrefix,
			time.Duration(cfg.Search.ResultCacheTTLSec)*time.Second, logger,
		)
		outcomeCache = rc
		cacheAdmin = rc
	}

	retriever := retrieval.New(embedder, semanticRepo, lexicalRepo, outcomeCache, retrieval.Options{
		SemanticWeight:     cfg.Search.SemanticWeight,
		KeywordWeight:      cfg.Search.KeywordWeight,
		DiversityWeight:    cfg.Search.DiversityWeight,
		RelevanceThreshold: cfg.Search.RelevanceThreshold,
		FallbackDiscount:   cfg.Search.FallbackDiscount,
		MaxResults:         cfg.Search.MaxResults,
	}, logger)

	assembler := contextbuild.New(cfg.Context.MaxTokens, cfg.Context.MaxChunks)

	completer := openaiT.NewCompleter(&openaiT.ChatConfig{
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Chat.Model,
		MaxTokens: cfg.Chat.MaxTokens,
		Logger:    logger,
	})

	healthSvc := healthuc.New(store, provider)

	server := chiTransport.NewServer(
		retriever, assembler, completer, embedder,
		convLog, healthSvc, cacheAdmin, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> RateLimited -> Cached -> Gateway.
// The raw provider is returned separately for health probing.
func buildEmbedder(
	cfg *config.Config, store *dbRedis.Store, logger *zap.Logger,
) (domain.Embedder, *openaiT.Embedder) {
	provider := openaiT.NewEmbedder(&openaiT.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	var embedder domain.Embedder = provider

	rl := cfg.Embedding.RateLimit
	if rl.RequestsPerMinute > 0 || rl.TokensPerMinute > 0 {
		limiter := embeddinguc.NewRateLimiter(rl.RequestsPerMinute, rl.TokensPerMinute, logger)
		embedder = embeddinguc.NewLimitedEmbedder(embedder, limiter)
	}

	if cfg.Embedding.CacheTTLSec > 0 {
		embedder = embcache.New(
			embedder, store,
			cfg.Embedding.Model, cfg.Storage.KeyPrefix,
			time.Duration(cfg.Embedding.CacheTTLSec)*time.Second,
			metrics.EmbeddingCacheTotal, logger,
		)
	}

	gateway := embeddinguc.NewGateway(embedder, embeddinguc.Config{
		MaxTokens:    cfg.Embedding.MaxTokens,
		ChunkSize:    cfg.Embedding.ChunkSize,
		ChunkOverlap: cfg.Embedding.ChunkOverlap,
		Fallback:     cfg.Embedding.Fallback,
		Dimensions:   cfg.Embedding.Dimensions,
	}, logger)
	return gateway, provider
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
