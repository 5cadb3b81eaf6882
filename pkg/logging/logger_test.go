package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) Logger {
	return NewLogger(&Config{
		Level:       LevelDebug,
		ServiceName: "test",
		JSONFormat:  true,
		Output:      buf,
	})
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf)

	log.Info("message processed",
		F("message_id", "em-abc"),
		F("attempts", 2),
		F("confidence", 0.9),
		F("duration", 150*time.Millisecond),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "message processed", entry["message"])
	assert.Equal(t, "test", entry["service_name"])
	assert.Equal(t, "em-abc", entry["message_id"])
	assert.Equal(t, float64(2), entry["attempts"])
	assert.Equal(t, 0.9, entry["confidence"])
}

func TestErrField(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf)

	log.Error("pipeline failed", Err(errors.New("store unreachable")))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "store unreachable", entry["error"])
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf).With(F("component", "matcher"))

	log.Debug("scored candidates", F("count", 3))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "matcher", entry["component"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf)

	ctx := context.WithValue(context.Background(), TraceIDKey, "trace-1")
	ctx = context.WithValue(ctx, MessageIDKey, "em-xyz")

	log.WithContext(ctx).Info("routing decision")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "em-xyz", entry["message_id"])
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	// Must not panic and With must keep returning a usable logger.
	log.With(F("k", "v")).WithContext(context.Background()).Info("ignored")
}
