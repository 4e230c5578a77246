package redactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_PreservesOrderAndCount(t *testing.T) {
	r := New(2)
	texts := []string{"Contact John Doe at john@example.com", "no pii here", "call 555-123-4567"}

	out, _, err := r.Redact(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	assert.Contains(t, out[0], "<PERSON>")
	assert.Contains(t, out[0], "<EMAIL>")
	assert.Equal(t, "no pii here", out[1])
	assert.Contains(t, out[2], "<PHONE>")
}

func TestRedact_EmptyInput(t *testing.T) {
	r := New(1)
	out, findings, err := r.Redact(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, findings)
}

func TestTypes_DeduplicatesAndSorts(t *testing.T) {
	findings := []Finding{{InfoType: "EMAIL"}, {InfoType: "PERSON"}, {InfoType: "EMAIL"}}
	assert.Equal(t, []string{"EMAIL", "PERSON"}, Types(findings))
}

func TestAnalyse_NonOverlapping(t *testing.T) {
	a := newAnalyser()
	findings := a.analyse("Contact John Doe at john@example.com today")
	for i := 1; i < len(findings); i++ {
		assert.GreaterOrEqual(t, findings[i].StartIndex, findings[i-1].EndIndex)
	}
}

func TestRedact_SingleWorkerIsDeterministic(t *testing.T) {
	r := New(1)
	texts := []string{"Email me at a@b.com", "Email me at a@b.com"}
	out, _, err := r.Redact(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, out[0], out[1])
}
