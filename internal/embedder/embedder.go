// Package embedder implements the Embedder (C3): an adapter over pluggable
// embedding providers, normalising to fixed-dimension float vectors.
//
// Grounded on the teacher's internal/service/embedder.go (batching, dimension
// validation, L2 normalisation kept near-unchanged); generalized from a
// single hardcoded provider into the tagged-variant dispatch spec.md §9
// prescribes ("Express as a tagged-variant interface with explicit
// constructors, not runtime subclass discovery. Providers register at
// startup; unknown kinds fail fast.").
package embedder

import (
	"context"
	"math"

	"github.com/sentinelrag/sentinel/internal/apperr"
)

// Kind identifies an embedding provider variant (spec §4.3: {hosted-A,
// hosted-B, fake}).
type Kind string

const (
	KindHostedA Kind = "hosted-a"
	KindHostedB Kind = "hosted-b"
	KindFake    Kind = "fake"
)

const maxBatchSize = 250

// Provider is implemented by each embedding backend. Switching providers
// invalidates existing indexes (different vectors cohabit only if cosine
// semantics hold across providers — assumed false; re-ingestion required).
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// New constructs the Provider for kind, failing fast on an unknown kind
// (spec §9). cfg carries whichever fields the selected provider needs; unused
// fields are ignored.
func New(kind Kind, cfg Config) (Provider, error) {
	switch kind {
	case KindHostedA:
		return newHostedProvider(cfg.HostedAEndpoint, cfg.APIKey, cfg.Dimensions, cfg.HTTPClient), nil
	case KindHostedB:
		return newHostedProvider(cfg.HostedBEndpoint, cfg.APIKey, cfg.Dimensions, cfg.HTTPClient), nil
	case KindFake:
		return newFakeProvider(cfg.Dimensions), nil
	default:
		return nil, apperr.New(apperr.KindValidation, "unknown embedding provider kind: "+string(kind))
	}
}

// Config bundles every field any provider constructor might need.
type Config struct {
	HostedAEndpoint string
	HostedBEndpoint string
	APIKey          string
	Dimensions      int
	HTTPClient      HTTPDoer
}

// Embedder is the C3 contract: embed_documents / embed_query, batching and
// L2-normalising every vector the underlying Provider returns.
type Embedder struct {
	provider Provider
}

// NewEmbedder wraps a Provider with the batching/validation/normalisation
// logic common to every variant.
func NewEmbedder(p Provider) *Embedder {
	return &Embedder{provider: p}
}

// EmbedDocuments embeds a batch of texts, one vector per input, preserving
// order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no texts provided")
	}

	dims := e.provider.Dimensions()
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.provider.EmbedTexts(ctx, texts[i:end])
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyFailure, "embedding provider call failed", err)
		}
		for j, vec := range vectors {
			if len(vec) != dims {
				return nil, apperr.New(apperr.KindInternal, "embedding vector has unexpected dimensionality")
			}
			vectors[j] = l2Normalize(vec)
		}
		all = append(all, vectors...)
	}

	if len(all) != len(texts) {
		return nil, apperr.New(apperr.KindDependencyFailure, "embedding provider returned a mismatched vector count")
	}
	return all, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions reports the fixed vector dimensionality of the wrapped provider.
func (e *Embedder) Dimensions() int {
	return e.provider.Dimensions()
}

func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
