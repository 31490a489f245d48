package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupExportsSpansOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	shutdown, err := Setup(ctx, Config{Tracing: true, Output: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("teammatch-test").Start(ctx, "pairing.attempt")
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "pairing.attempt")
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
