package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"

	"github.com/sentinelrag/sentinel/internal/apperr"
)

// HTTPDoer is the minimal interface a hosted provider's HTTP client needs to
// satisfy, so tests can substitute a fake transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultDimensions = 1536

// hostedProvider calls a REST embedding endpoint that accepts
// {"input": [...]} and returns {"embeddings": [[...], ...]}. Both hosted-A
// and hosted-B are modeled as instances of this shape with different
// endpoints and keys, per spec.md §4.3's "polymorphic over provider
// variants" — they differ in wiring, not in protocol shape.
type hostedProvider struct {
	endpoint   string
	apiKey     string
	dimensions int
	client     HTTPDoer
}

func newHostedProvider(endpoint, apiKey string, dimensions int, client HTTPDoer) *hostedProvider {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &hostedProvider{endpoint: endpoint, apiKey: apiKey, dimensions: dimensions, client: client}
}

func (p *hostedProvider) Dimensions() int { return p.dimensions }

type hostedRequest struct {
	Input []string `json:"input"`
}

type hostedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *hostedProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(hostedRequest{Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, string(data))
	}

	var out hostedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	return out.Embeddings, nil
}

// fakeProvider returns deterministic pseudo-random vectors of the correct
// shape, for tests (spec §4.3: "fake returns deterministic random vectors of
// the correct shape for tests").
type fakeProvider struct {
	dimensions int
}

func newFakeProvider(dimensions int) *fakeProvider {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &fakeProvider{dimensions: dimensions}
}

func (p *fakeProvider) Dimensions() int { return p.dimensions }

func (p *fakeProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no texts provided")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(text, p.dimensions)
	}
	return out, nil
}

// deterministicVector seeds a PRNG from the text's content so the same input
// always yields the same vector within a test run, without depending on a
// real model.
func deterministicVector(text string, dims int) []float32 {
	var seed int64
	for _, r := range text {
		seed = seed*31 + int64(r)
	}
	rng := rand.New(rand.NewSource(seed))
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}
	return vec
}
