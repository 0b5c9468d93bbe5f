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

	"github.com/kailas-cloud/shopdex/internal/config"
	dbRedis "github.com/kailas-cloud/shopdex/internal/db/redis"
	"github.com/kailas-cloud/shopdex/internal/domain"
	logpkg "github.com/kailas-cloud/shopdex/internal/logger"
	"github.com/kailas-cloud/shopdex/internal/metrics"
	catalogrepo "github.com/kailas-cloud/shopdex/internal/repository/catalog"
	"github.com/kailas-cloud/shopdex/internal/repository/embcache"
	profilerepo "github.com/kailas-cloud/shopdex/internal/repository/profile"
	suggestrepo "github.com/kailas-cloud/shopdex/internal/repository/suggest"
	chiTransport "github.com/kailas-cloud/shopdex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/shopdex/internal/transport/openai"
	explainuc "github.com/kailas-cloud/shopdex/internal/usecase/explain"
	guarduc "github.com/kailas-cloud/shopdex/internal/usecase/guard"
	healthuc "github.com/kailas-cloud/shopdex/internal/usecase/health"
	personalizeuc "github.com/kailas-cloud/shopdex/internal/usecase/personalize"
	"github.com/kailas-cloud/shopdex/internal/usecase/pipeline"
	planuc "github.com/kailas-cloud/shopdex/internal/usecase/plan"
	rankuc "github.com/kailas-cloud/shopdex/internal/usecase/rank"
	retrieveuc "github.com/kailas-cloud/shopdex/internal/usecase/retrieve"
	suggestuc "github.com/kailas-cloud/shopdex/internal/usecase/suggest"
	"github.com/kailas-cloud/shopdex/internal/version"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

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

	logger.Info("Starting shopdex API server",
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
	metrics.RegisterPipelineMetrics()

	// Build embedder chain — composition root.
	// Take the first vectorizer config.
	var vecCfg config.VectorizerConfig
	var provName string
	for _, vc := range cfg.Embedding.Vectorizers {
		vecCfg = vc
		provName = vc.Provider
		break
	}
	provCfg := cfg.Embedding.Providers[provName]

	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: vecCfg.Dimensions,
		Provider:   provName,
		Logger:     logger,
	})
	var queryEmbedder domain.Embedder = embcache.New(baseEmbedder, store, metrics.EmbeddingCacheTotal, logger)
	if vecCfg.QueryInstruction != "" {
		queryEmbedder = domain.NewInstructionEmbedder(queryEmbedder, vecCfg.QueryInstruction)
	}
	logger.Info("Embedder created",
		zap.String("provider", provName),
		zap.String("model", vecCfg.Model),
		zap.Int("dimensions", vecCfg.Dimensions),
	)

	genProvCfg := cfg.Embedding.Providers[cfg.Generation.Provider]
	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      genProvCfg.APIKey,
		BaseURL:     genProvCfg.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Logger:      logger,
	})

	// Repositories
	catalogRepo := catalogrepo.New(store, logger)
	created, err := catalogRepo.EnsureIndex(ctx, vecCfg.Dimensions, cfg.Catalog.HNSWM, cfg.Catalog.HNSWEFConstruct)
	if err != nil {
		logger.Fatal("Failed to ensure product index", zap.Error(err))
	}
	if created && cfg.Catalog.SeedFile != "" {
		if err := seedCatalog(ctx, catalogRepo, baseEmbedder, cfg.Catalog.SeedFile, logger); err != nil {
			logger.Fatal("Failed to seed catalog", zap.Error(err))
		}
	}

	profileRepo := profilerepo.New(store)
	profileWriter := profilerepo.NewWriter(profileRepo, logger, 0)
	profileWriter.Start()
	defer profileWriter.Close()

	suggestDict := suggestrepo.New(store)

	// Use case services
	planSvc := planuc.New(logger)
	retrieveSvc := retrieveuc.New(queryEmbedder, catalogRepo, retrieveuc.Config{
		TopK:          cfg.Retrieval.TopK,
		Oversample:    cfg.Retrieval.Oversample,
		MinViable:     cfg.Retrieval.MinViable,
		MaxCandidates: cfg.Retrieval.MaxCandidates,
		Attempts:      cfg.Retrieval.Attempts,
	}, metrics.RetrievalRelaxedTotal, logger)
	personalizeSvc := personalizeuc.New(personalizeuc.Config{
		CategoryWeight: cfg.Personalization.CategoryWeight,
		BrandWeight:    cfg.Personalization.BrandWeight,
		PriceWeight:    cfg.Personalization.PriceWeight,
		SessionWeight:  cfg.Personalization.SessionWeight,
	}, logger)
	rankSvc := rankuc.New(rankuc.Config{
		Alpha:   cfg.Ranking.Alpha,
		Beta:    cfg.Ranking.Beta,
		Gamma:   cfg.Ranking.Gamma,
		Epsilon: cfg.Ranking.Epsilon,
	})
	guardSvc := guarduc.New(guarduc.Config{
		MinPrice: cfg.Guard.MinPrice,
		MaxPrice: cfg.Guard.MaxPrice,
	}, metrics.GuardFilteredTotal, logger)
	explainSvc := explainuc.New(generator, explainuc.DefaultTopN, logger)
	suggestSvc := suggestuc.New(planSvc, suggestDict, suggestuc.Config{
		Limit:        cfg.Suggest.Limit,
		MinPrefixLen: cfg.Suggest.MinPrefixLen,
	}, metrics.SuggestSupersededTotal, logger)

	pipelineSvc := pipeline.New(
		planSvc, retrieveSvc, personalizeSvc, guardSvc, rankSvc, explainSvc,
		profileRepo, profileWriter, suggestSvc, suggestDict,
		pipeline.Config{
			PlanTimeout:        time.Duration(cfg.Pipeline.PlanTimeoutMs) * time.Millisecond,
			RetrieveTimeout:    time.Duration(cfg.Pipeline.RetrieveTimeoutMs) * time.Millisecond,
			PersonalizeTimeout: time.Duration(cfg.Pipeline.PersonalizeTimeoutMs) * time.Millisecond,
			RankTimeout:        time.Duration(cfg.Pipeline.RankTimeoutMs) * time.Millisecond,
			ExplainTimeout:     time.Duration(cfg.Pipeline.ExplainTimeoutMs) * time.Millisecond,
			MaxProducts:        cfg.Pipeline.MaxProducts,
		}, logger,
	)

	healthSvc := healthuc.New(store, baseEmbedder, generator)

	server := chiTransport.NewServer(pipelineSvc, suggestSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

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

// seedCatalog loads the seed file, embeds each product description, and
// upserts the documents. Runs only when the index was just created, so a
// restart against a populated store skips it.
func seedCatalog(
	ctx context.Context,
	repo *catalogrepo.Repo,
	embedder domain.Embedder,
	path string,
	logger *zap.Logger,
) error {
	products, err := catalogrepo.LoadSeedFile(path)
	if err != nil {
		return fmt.Errorf("load seed file: %w", err)
	}

	docs := make([]catalogrepo.Doc, 0, len(products))
	for i := range products {
		res, err := embedder.Embed(ctx, catalogrepo.EmbedText(&products[i]))
		if err != nil {
			return fmt.Errorf("embed product %q: %w", products[i].ID(), err)
		}
		docs = append(docs, catalogrepo.Doc{Product: products[i], Vector: res.Embedding})
	}

	if err := repo.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("upsert seed products: %w", err)
	}
	logger.Info("Seeded product catalog", zap.String("file", path), zap.Int("products", len(docs)))
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
