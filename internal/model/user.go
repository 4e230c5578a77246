package model

import "time"

// UserStatus tracks whether a principal may authenticate.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// Tenant is the root isolation boundary; every other entity belongs to
// exactly one tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is a principal. Email is unique within a tenant.
type User struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	Status      UserStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Department is an organisational unit. Name is unique within a tenant.
type Department struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
}

// Role is always scoped to a department.
type Role struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId"`
	DepartmentID string `json:"departmentId"`
	Name         string `json:"name"`
}

// UserAccess is one (department, role) grant. A user may hold several
// simultaneously.
type UserAccess struct {
	UserID       string `json:"userId"`
	DepartmentID string `json:"departmentId"`
	RoleID       string `json:"roleId"`
}

// AccessGrant is the denormalised projection get_user_access_pairs returns:
// department and role names rather than ids, ready for the RBAC resolver.
type AccessGrant struct {
	DepartmentName string
	RoleName       string
}

// AccessMatrix is the authoritative, tenant-scoped policy: classification ->
// department -> allowed role names. Immutable at runtime (no hot reload, per
// spec.md Non-goals).
type AccessMatrix map[string]map[string][]string

// Allows reports whether role is permitted to see department's documents at
// classification under this matrix.
func (m AccessMatrix) Allows(classification, department, role string) bool {
	depts, ok := m[classification]
	if !ok {
		return false
	}
	roles, ok := depts[department]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
