package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_NoEndpoint(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	ctx := context.Background()

	shutdown, err := InitTracer(ctx, "", "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := otel.Tracer("test").Start(ctx, "span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(ctx))
}

func TestNewExporter_StdoutInDebug(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	exp, err := newExporter(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, exp)
	assert.NoError(t, exp.Shutdown(context.Background()))
}
