// Package rbac implements the RBAC Resolver (C7): translation of a user's
// (department, role) grants into the set of (department, classification)
// pairs they may query, under the tenant's AccessMatrix.
//
// The algorithm is grounded on original_source/core/rbac_manager.py's
// get_user_access_filters: for each grant and each classification present in
// the matrix, emit (department, classification) when the matrix allows that
// role at that classification in that department.
package rbac

import "github.com/sentinelrag/sentinel/internal/model"

// AccessPair is one (department, classification) the resolver has cleared a
// user to query.
type AccessPair struct {
	Department     string
	Classification string
}

// AccessPairsFetcher reads a user's (department, role) grants from the
// metadata store (C5's get_user_access_pairs).
type AccessPairsFetcher interface {
	AccessGrants(userID string) ([]model.AccessGrant, error)
}

// Resolver computes filters_for(user_id). It holds no per-call state, so
// repeated calls with the same inputs return the same result (P6).
type Resolver struct {
	matrix model.AccessMatrix
	grants AccessPairsFetcher
}

// New builds a Resolver over a fixed, tenant-scoped access matrix.
func New(matrix model.AccessMatrix, grants AccessPairsFetcher) *Resolver {
	return &Resolver{matrix: matrix, grants: grants}
}

// FiltersFor returns the deduplicated set of (department, classification)
// pairs userID may query. A user with zero grants yields an empty set; the
// retrieval coordinator must treat that as deny-all (spec §4.7).
func (r *Resolver) FiltersFor(userID string) ([]AccessPair, error) {
	grants, err := r.grants.AccessGrants(userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[AccessPair]bool)
	var out []AccessPair
	for _, g := range grants {
		for classification, depts := range r.matrix {
			roles, ok := depts[g.DepartmentName]
			if !ok {
				continue
			}
			if !containsRole(roles, g.RoleName) {
				continue
			}
			pair := AccessPair{Department: g.DepartmentName, Classification: classification}
			if !seen[pair] {
				seen[pair] = true
				out = append(out, pair)
			}
		}
	}
	return out, nil
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
