package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("production", &buf)

	log.Info("session established", slog.String("session_id", "TGT-1"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "casd", entry["service"])
	assert.Equal(t, "session established", entry["msg"])
	assert.Equal(t, "TGT-1", entry["session_id"])

	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
}

func TestNew_DevelopmentEmitsText(t *testing.T) {
	var buf bytes.Buffer
	log := New("development", &buf)

	log.Debug("sweep finished")

	assert.Contains(t, buf.String(), "sweep finished")
	assert.Contains(t, buf.String(), "service=casd")
}
