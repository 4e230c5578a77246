package repository

import (
	"context"
	"fmt"

	"github.com/sentinelrag/sentinel/internal/model"
)

// Seed populates a tenant's departments and roles from the RBAC policy on
// first boot, grounded on original_source/core/seeder.py's
// seed_initial_data: fill departments first, then roles, skipping anything
// that already exists. EnsureDepartment/EnsureRole are themselves
// idempotent, so Seed is safe to call on every startup alongside
// EnsureSchema (spec.md §4.5's "schema creation is idempotent at startup").
func (r *MetadataRepo) Seed(ctx context.Context, tenantID string, departments []string, matrix model.AccessMatrix) error {
	deptIDs := make(map[string]string, len(departments))
	for _, name := range departments {
		dept, err := r.EnsureDepartment(ctx, tenantID, name)
		if err != nil {
			return fmt.Errorf("repository.Seed: department %q: %w", name, err)
		}
		deptIDs[name] = dept.ID
	}

	seenRoles := make(map[string]bool)
	for _, deptRoles := range matrix {
		for deptName, roles := range deptRoles {
			deptID, ok := deptIDs[deptName]
			if !ok {
				dept, err := r.EnsureDepartment(ctx, tenantID, deptName)
				if err != nil {
					return fmt.Errorf("repository.Seed: department %q: %w", deptName, err)
				}
				deptID = dept.ID
				deptIDs[deptName] = deptID
			}
			for _, role := range roles {
				key := deptName + "/" + role
				if seenRoles[key] {
					continue
				}
				seenRoles[key] = true
				if _, err := r.EnsureRole(ctx, tenantID, deptID, role); err != nil {
					return fmt.Errorf("repository.Seed: role %q in department %q: %w", role, deptName, err)
				}
			}
		}
	}
	return nil
}
