package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFillsDefaults(t *testing.T) {
	raw, err := encode(Event{Operation: "authorize", PaymentID: "pay_1", Request: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, TypeUCSCall, got["event_type"])
	assert.Equal(t, "pay_1", got["payment_id"])
	assert.NotEmpty(t, got["occurred_at"])
	assert.Equal(t, map[string]any{"a": float64(1)}, got["request"])
	assert.NotContains(t, got, "error")
}

func TestLogSinkWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	require.NoError(t, LogSink{}.Emit(context.Background(), Event{Operation: "get", Connector: "dummy", Success: true}))
	assert.Contains(t, buf.String(), `"operation":"get"`)
	assert.Contains(t, buf.String(), `"event_type":"ucs_call"`)
}
