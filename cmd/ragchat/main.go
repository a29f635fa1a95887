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
	"go.uber.org/zap"

	"github.com/ragchat/ragchat/internal/chunker"
	"github.com/ragchat/ragchat/internal/config"
	"github.com/ragchat/ragchat/internal/db"
	dbRedis "github.com/ragchat/ragchat/internal/db/redis"
	"github.com/ragchat/ragchat/internal/domain"
	logpkg "github.com/ragchat/ragchat/internal/logger"
	"github.com/ragchat/ragchat/internal/metrics"
	chunkrepo "github.com/ragchat/ragchat/internal/repository/chunk"
	"github.com/ragchat/ragchat/internal/repository/conversation"
	"github.com/ragchat/ragchat/internal/repository/embcache"
	chiTransport "github.com/ragchat/ragchat/internal/transport/chi"
	openaiTransport "github.com/ragchat/ragchat/internal/transport/openai"
	chatuc "github.com/ragchat/ragchat/internal/usecase/chat"
	embeddinguc "github.com/ragchat/ragchat/internal/usecase/embedding"
	healthuc "github.com/ragchat/ragchat/internal/usecase/health"
	ingestuc "github.com/ragchat/ragchat/internal/usecase/ingest"
	"github.com/ragchat/ragchat/internal/version"
)

// chunkIndex is the operation set both index backends provide.
type chunkIndex interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Query(
		ctx context.Context, embedding []float32, topK int, threshold float64, filter domain.Filter,
	) ([]domain.RetrievalResult, error)
	ListSources(ctx context.Context) ([]string, error)
	DeleteSource(ctx context.Context, sourceID string) error
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragchat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	ctx := context.Background()

	// Create the chunk index based on driver
	var index chunkIndex
	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")

		repo := chunkrepo.New(store, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions)
		if err := repo.EnsureIndex(ctx); err != nil {
			logger.Fatal("Failed to create chunk index", zap.Error(err))
		}
		index = repo

	case "memory":
		index = chunkrepo.NewMemory(cfg.Embedding.Dimensions)
		logger.Info("Using in-memory chunk index")

	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}

	// Register provider metrics explicitly (no init())
	metrics.RegisterProviderMetrics()

	// Build embedder chain — composition root
	embedder := buildEmbedder(cfg, store, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	chatClient := openaiTransport.NewChatClient(&openaiTransport.ChatConfig{
		APIKey:      cfg.Chat.APIKey,
		BaseURL:     cfg.Chat.BaseURL,
		Model:       cfg.Chat.Model,
		Temperature: cfg.Chat.Temperature,
		Logger:      logger,
	})

	textChunker, err := chunker.New(cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	memory := conversation.NewStore()

	// Create use case services
	embedTimeout := time.Duration(cfg.Embedding.TimeoutSec) * time.Second
	ingestSvc := ingestuc.New(index, textChunker, embedder, embedTimeout, logger)
	chatSvc := chatuc.New(index, embedder, chatClient, memory, chatuc.Config{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		MemoryTurns:         cfg.Retrieval.MemoryTurns,
		EmbedTimeout:        embedTimeout,
		QueryTimeout:        time.Duration(cfg.Retrieval.QueryTimeoutSec) * time.Second,
		ChatTimeout:         time.Duration(cfg.Chat.TimeoutSec) * time.Second,
	}, logger)

	// Health service — the memory driver has no database to ping
	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(pinger, newProviderHealthChecker(embedder), chatClient)

	// Create chi server
	server := chiTransport.NewServer(ingestSvc, chatSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.RegisterRoutes(r)

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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	// Cached (only with a key-value store behind it)
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Embedding.Model, logger)
}

// providerHealthChecker unwraps the embedder chain to its health check, if any.
type providerHealthChecker struct {
	embedder domain.Embedder
	base     domain.HealthChecker
}

func newProviderHealthChecker(embedder domain.Embedder) *providerHealthChecker {
	hc, _ := embedder.(domain.HealthChecker)
	return &providerHealthChecker{embedder: embedder, base: hc}
}

func (h *providerHealthChecker) HealthCheck(ctx context.Context) error {
	if h.base == nil {
		return nil
	}
	if err := h.base.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
