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

	"github.com/atlas-cloud/vecsearch/internal/config"
	"github.com/atlas-cloud/vecsearch/internal/db/pg"
	dbRedis "github.com/atlas-cloud/vecsearch/internal/db/redis"
	"github.com/atlas-cloud/vecsearch/internal/domain"
	logpkg "github.com/atlas-cloud/vecsearch/internal/logger"
	"github.com/atlas-cloud/vecsearch/internal/metrics"
	documentrepo "github.com/atlas-cloud/vecsearch/internal/repository/document"
	"github.com/atlas-cloud/vecsearch/internal/repository/embcache"
	"github.com/atlas-cloud/vecsearch/internal/repository/memory"
	chiTransport "github.com/atlas-cloud/vecsearch/internal/transport/chi"
	"github.com/atlas-cloud/vecsearch/internal/transport/hf"
	openaiEmb "github.com/atlas-cloud/vecsearch/internal/transport/openai"
	embeddinguc "github.com/atlas-cloud/vecsearch/internal/usecase/embedding"
	healthuc "github.com/atlas-cloud/vecsearch/internal/usecase/health"
	ingestuc "github.com/atlas-cloud/vecsearch/internal/usecase/ingest"
	searchuc "github.com/atlas-cloud/vecsearch/internal/usecase/search"
	"github.com/atlas-cloud/vecsearch/internal/version"
)

// documentStore is everything the usecases need from a store backend.
// Satisfied by both the Postgres repository and the in-memory store.
type documentStore interface {
	Insert(
		ctx context.Context, content string, embedding []float32, metadata map[string]string,
	) (domain.Document, error)
	Delete(ctx context.Context, id int64) (bool, error)
	RankBySimilarity(ctx context.Context, query []float32, limit int) ([]domain.SearchResult, error)
	Ping(ctx context.Context) error
}

func main() {
	// .env is optional; real deployments inject environment directly
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

	logger.Info("Starting vecsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	ctx := context.Background()

	store, closeStore := buildStore(ctx, cfg, logger)
	defer closeStore()

	// Register embedding metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()

	provider, model := buildProvider(cfg, logger)
	logger.Info("Embedding provider created", zap.String("model", model))

	retried := embeddinguc.NewRetryEmbedder(provider, retryConfig(cfg.Embedding.Retry), logger)

	// Query path gets the cache; the ingest path always hits the provider
	// since document texts rarely repeat.
	var queryEmbedder domain.Embedder = retried
	if len(cfg.Cache.Addrs) > 0 {
		cache, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create embedding cache", zap.Error(err))
		}
		defer cache.Close()

		readiness := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := cache.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Embedding cache not ready", zap.Error(err))
		}

		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		queryEmbedder = embcache.New(retried, cache, model, ttl, metrics.EmbeddingCacheTotal, logger)
		logger.Info("Embedding cache enabled", zap.Duration("ttl", ttl))
	}

	searchSvc := searchuc.New(store, queryEmbedder, searchuc.Limits{
		Default: cfg.Search.DefaultLimit,
		Max:     cfg.Search.MaxLimit,
	})
	ingestSvc := ingestuc.New(store, retried, model, logger).
		WithMaxBatchSize(cfg.Ingest.MaxBatchSize)
	healthSvc := healthuc.New(store, provider)

	server := chiTransport.NewServer(searchSvc, ingestSvc, healthSvc, model, logger)

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

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildStore creates the document store backend by driver.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (documentStore, func()) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory document store; data will not survive restarts")
		return memory.New(), func() {}

	case "postgres":
		queryTimeout := time.Duration(cfg.Database.QueryTimeoutSec) * time.Second
		pool, err := pg.Open(pg.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeSec) * time.Second,
			QueryTimeout:    queryTimeout,
		})
		if err != nil {
			logger.Fatal("Failed to open database", zap.Error(err))
		}

		readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := pool.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")

		repo := documentrepo.New(pool.DB).WithQueryTimeout(queryTimeout)
		return repo, func() { _ = pool.Close() }

	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
		return nil, nil
	}
}

// embeddingProvider is the common surface of both transport clients.
type embeddingProvider interface {
	domain.BatchEmbedder
	domain.HealthChecker
}

// buildProvider creates the configured embedding client and reports its
// model name for cache keys and response payloads.
func buildProvider(cfg config.Config, logger *zap.Logger) (embeddingProvider, string) {
	switch cfg.Embedding.Provider {
	case "openai":
		oc := cfg.Embedding.OpenAI
		return openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     oc.APIKey,
			BaseURL:    oc.BaseURL,
			Model:      oc.Model,
			Dimensions: oc.Dimensions,
			Logger:     logger,
		}), oc.Model

	default: // "huggingface", enforced by config.Validate
		hc := cfg.Embedding.HuggingFace
		return hf.NewClient(&hf.Config{
			Token:        hc.Token,
			BaseURL:      hc.BaseURL,
			Model:        hc.Model,
			Dimensions:   hc.Dimensions,
			Timeout:      time.Duration(hc.TimeoutSec) * time.Second,
			WaitForModel: hc.WaitForModel,
			UseCache:     hc.UseCache,
			Logger:       logger,
		}), hc.Model
	}
}

func retryConfig(rc config.RetryConfig) embeddinguc.RetryConfig {
	out := embeddinguc.DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		out.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialIntervalMS > 0 {
		out.InitialInterval = time.Duration(rc.InitialIntervalMS) * time.Millisecond
	}
	if rc.MaxIntervalSec > 0 {
		out.MaxInterval = time.Duration(rc.MaxIntervalSec) * time.Second
	}
	return out
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
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
