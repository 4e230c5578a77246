package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/model"
	"github.com/sentinelrag/sentinel/internal/rbac"
)

// MetadataRepo owns tenants, users, departments, roles, and the user_access
// grant table — the identity side of C5. Grounded on the teacher's
// UserRepo.EnsureUser upsert pattern (internal/repository/user.go).
type MetadataRepo struct {
	pool *pgxpool.Pool
}

func NewMetadataRepo(pool *pgxpool.Pool) *MetadataRepo {
	return &MetadataRepo{pool: pool}
}

// EnsureUser upserts a user on email within a tenant, bumping last_login_at —
// the same shape as the teacher's EnsureUser, generalized off Firebase UID
// onto the OIDC subject/email pair resolved by internal/identity.
func (r *MetadataRepo) EnsureUser(ctx context.Context, tenantID, email, fullName string) (*model.User, error) {
	const q = `
		INSERT INTO users (id, tenant_id, email, full_name, status, created_at, last_login_at)
		VALUES (gen_random_uuid()::text, $1, $2, $3, 'active', now(), now())
		ON CONFLICT (tenant_id, email) DO UPDATE
			SET last_login_at = now(),
			    full_name = CASE WHEN users.full_name = '' THEN EXCLUDED.full_name ELSE users.full_name END
		RETURNING id, tenant_id, email, full_name, status, created_at, last_login_at`

	var u model.User
	var lastLogin *time.Time
	err := r.pool.QueryRow(ctx, q, tenantID, email, fullName).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.Status, &u.CreatedAt, &lastLogin)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "ensure user", err)
	}
	u.LastLoginAt = lastLogin
	return &u, nil
}

func (r *MetadataRepo) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	const q = `SELECT id, tenant_id, email, full_name, status, created_at, last_login_at FROM users WHERE id = $1`
	var u model.User
	var lastLogin *time.Time
	err := r.pool.QueryRow(ctx, q, userID).Scan(&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.Status, &u.CreatedAt, &lastLogin)
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "get user", err)
	}
	u.LastLoginAt = lastLogin
	return &u, nil
}

// GetUserByEmail looks up a user without creating one — the registration
// decision in internal/identity's OIDC callback depends on this returning
// KindNotFound for an email the tenant has never seen.
func (r *MetadataRepo) GetUserByEmail(ctx context.Context, tenantID, email string) (*model.User, error) {
	const q = `SELECT id, tenant_id, email, full_name, status, created_at, last_login_at FROM users WHERE tenant_id = $1 AND email = $2`
	var u model.User
	var lastLogin *time.Time
	err := r.pool.QueryRow(ctx, q, tenantID, email).Scan(&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.Status, &u.CreatedAt, &lastLogin)
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "get user by email", err)
	}
	u.LastLoginAt = lastLogin
	return &u, nil
}

func (r *MetadataRepo) GetTenantByDomain(ctx context.Context, domain string) (*model.Tenant, error) {
	const q = `SELECT id, domain, created_at FROM tenants WHERE domain = $1`
	var t model.Tenant
	err := r.pool.QueryRow(ctx, q, domain).Scan(&t.ID, &t.Domain, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "tenant not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "get tenant", err)
	}
	return &t, nil
}

func (r *MetadataRepo) EnsureTenant(ctx context.Context, domain string) (*model.Tenant, error) {
	const q = `
		INSERT INTO tenants (id, domain, created_at) VALUES (gen_random_uuid()::text, $1, now())
		ON CONFLICT (domain) DO UPDATE SET domain = EXCLUDED.domain
		RETURNING id, domain, created_at`
	var t model.Tenant
	err := r.pool.QueryRow(ctx, q, domain).Scan(&t.ID, &t.Domain, &t.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "ensure tenant", err)
	}
	return &t, nil
}

func (r *MetadataRepo) ListDepartments(ctx context.Context, tenantID string) ([]model.Department, error) {
	const q = `SELECT id, tenant_id, name FROM departments WHERE tenant_id = $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "list departments", err)
	}
	defer rows.Close()

	var out []model.Department
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name); err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyFailure, "scan department", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *MetadataRepo) EnsureDepartment(ctx context.Context, tenantID, name string) (*model.Department, error) {
	const q = `
		INSERT INTO departments (id, tenant_id, name) VALUES (gen_random_uuid()::text, $1, $2)
		ON CONFLICT (tenant_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, tenant_id, name`
	var d model.Department
	err := r.pool.QueryRow(ctx, q, tenantID, name).Scan(&d.ID, &d.TenantID, &d.Name)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "ensure department", err)
	}
	return &d, nil
}

func (r *MetadataRepo) EnsureRole(ctx context.Context, tenantID, departmentID, name string) (*model.Role, error) {
	const q = `
		INSERT INTO roles (id, tenant_id, department_id, name) VALUES (gen_random_uuid()::text, $1, $2, $3)
		ON CONFLICT (department_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, tenant_id, department_id, name`
	var role model.Role
	err := r.pool.QueryRow(ctx, q, tenantID, departmentID, name).Scan(&role.ID, &role.TenantID, &role.DepartmentID, &role.Name)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "ensure role", err)
	}
	return &role, nil
}

func (r *MetadataRepo) GrantAccess(ctx context.Context, userID, departmentID, roleID string) error {
	const q = `
		INSERT INTO user_access (user_id, department_id, role_id) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, userID, departmentID, roleID); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "grant access", err)
	}
	return nil
}

// AccessGrants returns every (department, role) pair a user holds, the raw
// material the resolver walks through the access matrix. It takes a context,
// so it does not itself satisfy rbac.AccessPairsFetcher; ForRBAC adapts it.
func (r *MetadataRepo) AccessGrants(ctx context.Context, userID string) ([]model.AccessGrant, error) {
	const q = `
		SELECT d.name, ro.name
		FROM user_access ua
		JOIN departments d ON d.id = ua.department_id
		JOIN roles ro ON ro.id = ua.role_id
		WHERE ua.user_id = $1`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "access grants", err)
	}
	defer rows.Close()

	var out []model.AccessGrant
	for rows.Next() {
		var g model.AccessGrant
		if err := rows.Scan(&g.DepartmentName, &g.RoleName); err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyFailure, "scan access grant", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// boundAccessGrants adapts MetadataRepo to rbac.AccessPairsFetcher, which is
// deliberately context-free (the resolver's FiltersFor computes over
// already-fetched grants with no per-call I/O of its own). One instance is
// built per request, binding that request's context.
type boundAccessGrants struct {
	repo *MetadataRepo
	ctx  context.Context
}

func (b boundAccessGrants) AccessGrants(userID string) ([]model.AccessGrant, error) {
	return b.repo.AccessGrants(b.ctx, userID)
}

// ForRBAC returns an rbac.AccessPairsFetcher bound to ctx, ready to pass to
// rbac.Resolver.FiltersFor's backing fetcher.
func (r *MetadataRepo) ForRBAC(ctx context.Context) rbac.AccessPairsFetcher {
	return boundAccessGrants{repo: r, ctx: ctx}
}
