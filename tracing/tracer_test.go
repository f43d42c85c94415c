package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerProvider(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	tp, err := InitTracerProvider(ctx, "oauth-test", &buf)
	require.NoError(t, err)

	_, span := Tracer().Start(ctx, "grant.authorize")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tp.Shutdown(ctx))
	assert.Contains(t, buf.String(), "grant.authorize")
	assert.Contains(t, buf.String(), "oauth-test")
}
