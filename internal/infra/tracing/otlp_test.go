package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerInstallsGlobalProvider(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracer(ctx, "http://127.0.0.1:4318/v1/traces", "keyframe-extraction-test")
	require.NoError(t, err)

	assert.Same(t, tp, otel.GetTracerProvider())

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = tp.Shutdown(shutdownCtx)
}
