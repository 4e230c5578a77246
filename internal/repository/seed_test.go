package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelrag/sentinel/internal/model"
)

func TestMetadataRepo_Seed_CreatesDepartmentsAndRoles(t *testing.T) {
	repo, cleanup := setupMetadataRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenant, err := repo.EnsureTenant(ctx, "seed.example.com")
	require.NoError(t, err)

	matrix := model.AccessMatrix{
		"public": {
			"engineering": {"member", "lead"},
			"sales":       {"member"},
		},
		"confidential": {
			"engineering": {"lead"},
		},
	}

	require.NoError(t, repo.Seed(ctx, tenant.ID, []string{"engineering", "sales", "hr"}, matrix))

	depts, err := repo.ListDepartments(ctx, tenant.ID)
	require.NoError(t, err)
	names := make(map[string]bool, len(depts))
	for _, d := range depts {
		names[d.Name] = true
	}
	require.True(t, names["engineering"])
	require.True(t, names["sales"])
	require.True(t, names["hr"])
}

func TestMetadataRepo_Seed_IsIdempotent(t *testing.T) {
	repo, cleanup := setupMetadataRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenant, err := repo.EnsureTenant(ctx, "seed-idempotent.example.com")
	require.NoError(t, err)

	matrix := model.AccessMatrix{
		"public": {"engineering": {"member"}},
	}

	require.NoError(t, repo.Seed(ctx, tenant.ID, []string{"engineering"}, matrix))
	require.NoError(t, repo.Seed(ctx, tenant.ID, []string{"engineering"}, matrix))

	depts, err := repo.ListDepartments(ctx, tenant.ID)
	require.NoError(t, err)
	count := 0
	for _, d := range depts {
		if d.Name == "engineering" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestMetadataRepo_Seed_DerivesDepartmentsFromMatrixAlone(t *testing.T) {
	repo, cleanup := setupMetadataRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenant, err := repo.EnsureTenant(ctx, "seed-matrix-only.example.com")
	require.NoError(t, err)

	matrix := model.AccessMatrix{
		"public": {"legal": {"member"}},
	}

	require.NoError(t, repo.Seed(ctx, tenant.ID, nil, matrix))

	depts, err := repo.ListDepartments(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, depts, 1)
	require.Equal(t, "legal", depts[0].Name)
}
