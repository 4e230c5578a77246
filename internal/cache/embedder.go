package cache

import "context"

// QueryEmbedder is the C3 surface a CachedEmbedder wraps.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CachedEmbedder decorates a QueryEmbedder with an EmbeddingCache, so a
// repeated question skips the embedding-provider round trip entirely.
type CachedEmbedder struct {
	delegate QueryEmbedder
	cache    *EmbeddingCache
}

// NewCachedEmbedder builds a CachedEmbedder over delegate.
func NewCachedEmbedder(delegate QueryEmbedder, cache *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{delegate: delegate, cache: cache}
}

// EmbedQuery implements QueryEmbedder, consulting the cache before calling
// delegate.
func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(ctx, text); ok {
		return vec, nil
	}

	vec, err := e.delegate.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, text, vec)
	return vec, nil
}
