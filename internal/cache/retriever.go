package cache

import (
	"context"

	"github.com/sentinelrag/sentinel/internal/retrieval"
)

// Retriever is the C9 surface a CachedRetriever wraps.
type Retriever interface {
	Query(ctx context.Context, tenantID, userID, question string, k int, expandParents bool) ([]retrieval.Result, error)
}

// CachedRetriever decorates a Retriever with a QueryCache, grounded on
// Tributary-ai-services-tas-agent-builder's CachedContextService
// wrap-the-delegate shape: check cache, miss falls through to the
// delegate, populate on the way back out.
type CachedRetriever struct {
	delegate Retriever
	cache    *QueryCache
}

// NewCachedRetriever builds a CachedRetriever over delegate.
func NewCachedRetriever(delegate Retriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{delegate: delegate, cache: cache}
}

// Query implements Retriever, consulting the cache before calling delegate.
func (r *CachedRetriever) Query(ctx context.Context, tenantID, userID, question string, k int, expandParents bool) ([]retrieval.Result, error) {
	if cached, ok := r.cache.Get(ctx, tenantID, userID, question, k, expandParents); ok {
		return cached, nil
	}

	results, err := r.delegate.Query(ctx, tenantID, userID, question, k, expandParents)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, tenantID, userID, question, k, expandParents, results)
	return results, nil
}
