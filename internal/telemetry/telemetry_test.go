package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetup_ReturnsWorkingShutdown(t *testing.T) {
	shutdown := Setup("sentinel-test")
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestStartSpan_RecordErrorEndsSpanWithoutPanicking(t *testing.T) {
	Setup("sentinel-test")
	ctx, span := StartSpan(context.Background(), "ingest", "parse")
	require.NotNil(t, ctx)
	RecordError(span, errors.New("boom"))

	_, okSpan := StartSpan(context.Background(), "retrieval", "embed_query")
	RecordError(okSpan, nil)
}
