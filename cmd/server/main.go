package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelrag/sentinel/internal/audit"
	"github.com/sentinelrag/sentinel/internal/cache"
	"github.com/sentinelrag/sentinel/internal/chunker"
	"github.com/sentinelrag/sentinel/internal/config"
	"github.com/sentinelrag/sentinel/internal/embedder"
	"github.com/sentinelrag/sentinel/internal/handler"
	"github.com/sentinelrag/sentinel/internal/identity"
	"github.com/sentinelrag/sentinel/internal/ingest"
	"github.com/sentinelrag/sentinel/internal/middleware"
	"github.com/sentinelrag/sentinel/internal/parser"
	"github.com/sentinelrag/sentinel/internal/rbac"
	"github.com/sentinelrag/sentinel/internal/redactor"
	"github.com/sentinelrag/sentinel/internal/repository"
	"github.com/sentinelrag/sentinel/internal/retrieval"
	"github.com/sentinelrag/sentinel/internal/router"
	"github.com/sentinelrag/sentinel/internal/telemetry"
	"github.com/sentinelrag/sentinel/internal/vectorstore"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const Version = "0.1.0"

// AppState is the process-wide collection of long-lived collaborators
// (spec.md §9: "Wrap in an explicit AppState value... not global mutable
// variables"). initialize builds it; shutdown tears it down in the
// documented order (audit buffer flush, then vector client, then metadata
// pool — the vector store and metadata repos share one pool here, so
// closing the pool covers both).
type AppState struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	audit   *audit.Sink
	otelDown func(context.Context) error

	router http.Handler
}

func initialize(ctx context.Context) (*AppState, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown := telemetry.Setup("sentinel")

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	policy, err := config.LoadPolicy(cfg.RBACPolicyPath)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("load rbac policy: %w", err)
	}

	docs := repository.NewDocumentRepo(pool)
	metadata := repository.NewMetadataRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)

	if cfg.DefaultTenantDomain != "" {
		tenant, err := metadata.EnsureTenant(ctx, cfg.DefaultTenantDomain)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed default tenant: %w", err)
		}
		if err := metadata.Seed(ctx, tenant.ID, policy.Departments, policy.AccessMatrix); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed rbac policy: %w", err)
		}
	}

	auditSink := audit.New(auditRepo, cfg.AuditBufferSize, cfg.AuditWorkers)

	p := parser.New(0, 0)
	chunkerCfg := chunker.Config{
		ParentSize:    cfg.ChunkParentSize,
		ParentOverlap: cfg.ChunkParentOverlap,
		ChildSize:     cfg.ChunkChildSize,
		ChildOverlap:  cfg.ChunkChildOverlap,
	}
	c, err := chunker.New(chunkerCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("build chunker: %w", err)
	}

	embedProvider, err := embedder.New(embedder.Kind(cfg.EmbeddingKind), embedder.Config{
		HostedAEndpoint: cfg.HostedAEndpoint,
		HostedBEndpoint: cfg.HostedBEndpoint,
		APIKey:          cfg.EmbeddingAPIKey,
		Dimensions:      cfg.EmbeddingDimensions,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}
	emb := embedder.NewEmbedder(embedProvider)

	r := redactor.New(cfg.RedactorWorkers)
	vectors := vectorstore.New(pool)
	resolver := rbac.New(policy.AccessMatrix, metadata.ForRBAC(ctx))

	identitySvc, err := identity.New(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID, cfg.OIDCClientSecret,
		cfg.OIDCRedirectURL, []byte(cfg.SessionSigningKey), metadata, auditSink)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("build identity service: %w", err)
	}

	ingestCoordinator := ingest.New(docs, vectors, p, c, emb, r, auditSink)

	var queryCache *cache.QueryCache
	var embeddingCache *cache.EmbeddingCache
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		queryCache = cache.NewRedis(client, 5*time.Minute)
		embeddingCache = cache.NewEmbeddingCacheRedis(client, 15*time.Minute)
	} else {
		queryCache = cache.New(5 * time.Minute)
		embeddingCache = cache.NewEmbeddingCache(15 * time.Minute)
	}
	queryEmbedder := cache.NewCachedEmbedder(emb, embeddingCache)

	retrievalCoordinator := retrieval.New(resolver, queryEmbedder, vectors, docs, r, auditSink, cfg.SimilarityThreshold)
	cachedRetriever := cache.NewCachedRetriever(retrievalCoordinator, queryCache)

	metricsReg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(metricsReg)

	generalLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: 120,
		Window:      time.Minute,
	})

	isProduction := cfg.Environment != "development"

	deps := &router.Dependencies{
		DB:          pool,
		Version:     Version,
		FrontendURL: cfg.FrontendURL,
		Production:  isProduction,

		Metrics:    metrics,
		MetricsReg: metricsReg,

		Identity:           identitySvc,
		InternalAuthSecret: cfg.InternalAuthSecret,
		Pool:               pool,

		Auth: handler.AuthDeps{
			Identity:     identitySvc,
			Tenants:      metadata,
			CookieSecure: isProduction,
			IsProduction: isProduction,
		},

		Upload: handler.UploadDeps{
			Pipeline:     ingestCoordinator,
			Departments:  metadata,
			IsProduction: isProduction,
		},

		UserDocs: handler.UserDocsDeps{
			Docs:         docs,
			IsProduction: isProduction,
		},

		Query: handler.QueryDeps{
			Coordinator:  cachedRetriever,
			IsProduction: isProduction,
		},

		GeneralRateLimiter: generalLimiter,
	}

	return &AppState{
		cfg:      cfg,
		pool:     pool,
		audit:    auditSink,
		otelDown: otelShutdown,
		router:   router.New(deps),
	}, nil
}

// shutdown tears AppState down in spec.md §9's documented order: flush the
// audit buffer, then release the shared pool (covering both the vector
// store and the metadata/document repos, which share it).
func (a *AppState) shutdown(ctx context.Context) {
	a.audit.Close()
	a.pool.Close()
	if a.otelDown != nil {
		if err := a.otelDown(ctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}
}

func getPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	if cfg != nil && cfg.Port != 0 {
		return fmt.Sprintf("%d", cfg.Port)
	}
	return "8080"
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	port := getPort(app.cfg)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      app.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("sentinel v%s starting on port %s", Version, port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Println("received shutdown signal, shutting down gracefully")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	app.shutdown(shutdownCtx)

	log.Println("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
