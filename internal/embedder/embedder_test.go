package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelrag/sentinel/internal/apperr"
)

func TestNew_UnknownKindFailsFast(t *testing.T) {
	_, err := New(Kind("unknown"), Config{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestEmbedDocuments_FakeProviderIsDeterministic(t *testing.T) {
	p, err := New(KindFake, Config{Dimensions: 16})
	require.NoError(t, err)
	e := NewEmbedder(p)

	v1, err := e.EmbedDocuments(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	v2, err := e.EmbedDocuments(context.Background(), []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1[0], 16)
}

func TestEmbedDocuments_VectorsAreL2Normalized(t *testing.T) {
	p, err := New(KindFake, Config{Dimensions: 8})
	require.NoError(t, err)
	e := NewEmbedder(p)

	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	for _, v := range vecs {
		var sumSq float64
		for _, f := range v {
			sumSq += float64(f) * float64(f)
		}
		assert.InDelta(t, 1.0, sumSq, 1e-4)
	}
}

func TestEmbedDocuments_RejectsEmptyInput(t *testing.T) {
	p, err := New(KindFake, Config{Dimensions: 4})
	require.NoError(t, err)
	e := NewEmbedder(p)

	_, err = e.EmbedDocuments(context.Background(), nil)
	require.Error(t, err)
}

func TestEmbedQuery_ReturnsSingleVector(t *testing.T) {
	p, err := New(KindFake, Config{Dimensions: 4})
	require.NoError(t, err)
	e := NewEmbedder(p)

	v, err := e.EmbedQuery(context.Background(), "dress code")
	require.NoError(t, err)
	assert.Len(t, v, 4)
}

func TestEmbedDocuments_BatchesAcrossMaxBatchSize(t *testing.T) {
	p, err := New(KindFake, Config{Dimensions: 4})
	require.NoError(t, err)
	e := NewEmbedder(p)

	texts := make([]string, maxBatchSize+10)
	for i := range texts {
		texts[i] = "text"
	}
	vecs, err := e.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, len(texts))
}
