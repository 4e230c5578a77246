package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelrag/sentinel/internal/apperr"
)

func TestExtract_PlainText(t *testing.T) {
	p := New(0, 0)
	res, err := p.Extract("notes.txt", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Markdown)
	assert.Equal(t, 1, res.Pages)
}

func TestExtract_EmptyTextRejected(t *testing.T) {
	p := New(0, 0)
	_, err := p.Extract("notes.txt", []byte("   "))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	p := New(0, 0)
	_, err := p.Extract("image.png", []byte{0x89, 0x50})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExtract_Markdown(t *testing.T) {
	p := New(0, 0)
	res, err := p.Extract("README.md", []byte("# Title\n\nbody"))
	require.NoError(t, err)
	assert.Contains(t, res.Markdown, "# Title")
}

func TestComplexityScore_SimplePDFPrefersFastExtractor(t *testing.T) {
	p := New(5, 0)
	doc := &pdfDoc{
		hasStructTreeRoot: true,
		producer:          "microsoft word",
		pages: []pdfPage{
			{text: "a reasonably long line of extracted text content here"},
		},
	}
	score := p.complexityScore(doc)
	assert.Less(t, score, moderateThreshold)
}

func TestComplexityScore_ScannedPDFPrefersLayoutConverter(t *testing.T) {
	p := New(5, 0)
	doc := &pdfDoc{
		hasStructTreeRoot: false,
		producer:          "indesign",
		pages: []pdfPage{
			{text: "short", imageCount: 1},
		},
	}
	score := p.complexityScore(doc)
	assert.GreaterOrEqual(t, score, float64(moderateThreshold))
}

func TestComplexityScore_DividesByPagesSampled(t *testing.T) {
	p := New(2, 0)
	doc := &pdfDoc{
		hasStructTreeRoot: true,
		pages: []pdfPage{
			{text: "short", imageCount: 1}, // +5
			{text: "short", imageCount: 1}, // +5
			{text: "short", imageCount: 1}, // not sampled (sample cap 2)
		},
	}
	score := p.complexityScore(doc)
	assert.InDelta(t, 5.0, score, 0.01)
}
