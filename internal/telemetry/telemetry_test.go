package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payswitch/internal/config"
)

func TestInitTracerWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TelemetryCfg{ServiceName: "payswitch"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestEndpointOptions(t *testing.T) {
	assert.Len(t, endpointOptions("collector:4318"), 3)
	assert.Len(t, endpointOptions("http://collector:4318/v1/traces"), 3)
	assert.Len(t, endpointOptions("https://collector.example.com/otlp"), 2)
}
