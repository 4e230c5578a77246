package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_EveryChildHasExactlyOneParent(t *testing.T) {
	c, err := New(Config{ParentSize: 200, ParentOverlap: 20, ChildSize: 50, ChildOverlap: 10})
	require.NoError(t, err)

	md := "# Intro\n\n" + strings.Repeat("lorem ipsum dolor sit amet consectetur. ", 20) +
		"\n\n## Details\n\n" + strings.Repeat("further details about the system. ", 20)

	res, err := c.Chunk(md)
	require.NoError(t, err)
	require.NotEmpty(t, res.Parents)
	require.NotEmpty(t, res.Children)
	require.Len(t, res.Edges, len(res.Children))

	seenParents := make(map[int]bool)
	for _, e := range res.Edges {
		require.GreaterOrEqual(t, e.ParentIndex, 0)
		require.Less(t, e.ParentIndex, len(res.Parents))
		seenParents[e.ParentIndex] = true
	}
	assert.NotEmpty(t, seenParents)
}

func TestChunk_HeaderPropagatesFromParentToChild(t *testing.T) {
	c, err := New(Config{ParentSize: 500, ParentOverlap: 20, ChildSize: 100, ChildOverlap: 10})
	require.NoError(t, err)

	md := "## Policy\n\n" + strings.Repeat("the policy states that access requires approval. ", 10)
	res, err := c.Chunk(md)
	require.NoError(t, err)

	for _, p := range res.Parents {
		assert.Equal(t, "Policy", p.Header)
	}
	for _, ch := range res.Children {
		assert.Equal(t, "Policy", ch.Header)
	}
}

func TestChunk_RejectsEmptyInput(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	_, err = c.Chunk("   ")
	require.Error(t, err)
}

func TestNewConfig_RejectsParentSmallerThanChild(t *testing.T) {
	_, err := New(Config{ParentSize: 100, ParentOverlap: 10, ChildSize: 400, ChildOverlap: 10})
	require.Error(t, err)
}

func TestChunkFlat_EmitsNoParentsOrEdges(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	md := strings.Repeat("a short flat document sentence. ", 50)
	children, err := c.ChunkFlat(md)
	require.NoError(t, err)
	assert.NotEmpty(t, children)
	for i, ch := range children {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, "child", ch.ChunkType)
	}
}

func TestSplitBySeparators_RespectsSizeBudget(t *testing.T) {
	text := strings.Repeat("word ", 500)
	pieces := splitBySeparators(text, 100, 10)
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), 100+10+5) // overlap prefix + separator slack
	}
}
