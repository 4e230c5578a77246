package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/sentinelrag/sentinel/internal/model"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns. Grounded on the
// teacher's envStr/envInt/envFloat Load() shape, generalized from GCP/Vertex/
// DocAI/BigQuery/Vonage-specific fields to Sentinel's provider-agnostic
// embedding, RBAC-policy, and audit-retention configuration (spec §6).
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int

	EmbeddingKind       string
	EmbeddingDimensions int
	HostedAEndpoint     string
	HostedBEndpoint     string
	EmbeddingAPIKey     string

	ChunkParentSize    int
	ChunkParentOverlap int
	ChunkChildSize     int
	ChunkChildOverlap  int
	SimilarityThreshold float64

	RedactorWorkers int

	RBACPolicyPath string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	SessionSigningKey string

	RedisURL string

	AuditBufferSize int
	AuditWorkers    int

	InternalAuthSecret string
	FrontendURL        string

	// DefaultTenantDomain, when set, seeds one tenant plus its RBAC policy's
	// departments/roles on startup (original_source/core/seeder.py's
	// bootstrap step) rather than requiring an operator to create the first
	// tenant by hand before anyone can register.
	DefaultTenantDomain string
}

// Load reads configuration from environment variables. DATABASE_URL is the
// only universally required variable; SESSION_SIGNING_KEY and
// INTERNAL_AUTH_SECRET are required outside development, matching the
// teacher's non-development secret-enforcement rule.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		EmbeddingKind:       envStr("EMBEDDING_PROVIDER", "fake"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 1536),
		HostedAEndpoint:     envStr("EMBEDDING_HOSTED_A_ENDPOINT", ""),
		HostedBEndpoint:     envStr("EMBEDDING_HOSTED_B_ENDPOINT", ""),
		EmbeddingAPIKey:     envStr("EMBEDDING_API_KEY", ""),

		ChunkParentSize:     envInt("CHUNK_PARENT_SIZE", 2000),
		ChunkParentOverlap:  envInt("CHUNK_PARENT_OVERLAP", 200),
		ChunkChildSize:      envInt("CHUNK_CHILD_SIZE", 400),
		ChunkChildOverlap:   envInt("CHUNK_CHILD_OVERLAP", 50),
		SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.60),

		RedactorWorkers: envInt("REDACTOR_WORKERS", 0),

		RBACPolicyPath: envStr("RBAC_POLICY_PATH", "./policy.json"),

		OIDCIssuerURL:     envStr("OIDC_ISSUER_URL", ""),
		OIDCClientID:      envStr("OIDC_CLIENT_ID", ""),
		OIDCClientSecret:  envStr("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:   envStr("OIDC_REDIRECT_URL", ""),
		SessionSigningKey: envStr("SESSION_SIGNING_KEY", ""),

		RedisURL: envStr("REDIS_URL", ""),

		AuditBufferSize: envInt("AUDIT_BUFFER_SIZE", 1024),
		AuditWorkers:    envInt("AUDIT_WORKERS", 4),

		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),
		FrontendURL:        envStr("FRONTEND_URL", "http://localhost:3000"),

		DefaultTenantDomain: envStr("DEFAULT_TENANT_DOMAIN", ""),
	}

	if cfg.Environment != "development" {
		if cfg.InternalAuthSecret == "" {
			return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
		}
		if len(cfg.SessionSigningKey) < 32 {
			return nil, fmt.Errorf("config.Load: SESSION_SIGNING_KEY must be at least 32 characters in %s environment", cfg.Environment)
		}
	}

	return cfg, nil
}

// Policy is the JSON document supplying RBAC configuration: the tenant's
// departments, roles, and access matrix (spec §6's "Configuration
// (persisted at rest)"). It is loaded once at startup; spec.md's Non-goals
// explicitly exclude hot reconfiguration of RBAC policy at runtime.
type Policy struct {
	Departments  []string            `json:"departments"`
	Roles        []string            `json:"roles"`
	AccessMatrix model.AccessMatrix  `json:"accessMatrix"`
}

// LoadPolicy reads and validates the RBAC policy document from path.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadPolicy: read %s: %w", path, err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config.LoadPolicy: parse %s: %w", path, err)
	}
	if len(p.AccessMatrix) == 0 {
		return nil, fmt.Errorf("config.LoadPolicy: %s has an empty accessMatrix", path)
	}
	return &p, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
