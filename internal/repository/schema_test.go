package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping repository integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	return pool
}

func TestEnsureSchema_CreatesAllTables(t *testing.T) {
	pool := getTestPool(t)
	defer pool.Close()

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, pool))

	expectedTables := []string{
		"tenants", "users", "departments", "roles", "user_access",
		"documents", "parent_chunks", "child_chunks",
		"audit_logs", "query_audit", "auth_audit", "modification_audit",
	}
	for _, table := range expectedTables {
		var exists bool
		err := pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table,
		).Scan(&exists)
		require.NoError(t, err)
		if !exists {
			t.Errorf("table %s does not exist after EnsureSchema", table)
		}
	}
}

func TestEnsureSchema_IsIdempotent(t *testing.T) {
	pool := getTestPool(t)
	defer pool.Close()

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, pool))
	require.NoError(t, EnsureSchema(ctx, pool))
}

func TestEnsureSchema_EmbeddingColumnIsVectorType(t *testing.T) {
	pool := getTestPool(t)
	defer pool.Close()

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, pool))

	var dataType string
	err := pool.QueryRow(ctx, `
		SELECT udt_name FROM information_schema.columns
		WHERE table_name = 'child_chunks' AND column_name = 'embedding'
	`).Scan(&dataType)
	require.NoError(t, err)
	require.Equal(t, "vector", dataType)
}
