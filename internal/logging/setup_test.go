package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(FormatJSON, "warn", &buf)
	require.NoError(t, err)

	logger := slog.New(h)
	logger.Info("hidden")
	logger.Warn("shown", "worker", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.EqualValues(t, 3, entry["worker"])
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler("", "debug", &buf)
	require.NoError(t, err)

	slog.New(h).Debug("pool started", "workers", 16)
	assert.Contains(t, buf.String(), "pool started")
	assert.Contains(t, buf.String(), "workers=16")
	assert.True(t, h.Enabled(t.Context(), slog.LevelDebug))
}

func TestRejectsUnknownSettings(t *testing.T) {
	_, err := NewHandler("xml", "info", nil)
	assert.ErrorContains(t, err, `unknown log format "xml"`)

	_, err = NewHandler("text", "loud", nil)
	assert.ErrorContains(t, err, `unknown log level "loud"`)

	for _, lvl := range []string{"trace", "DEBUG", "info", "warning", "error"} {
		assert.NoError(t, ValidateLevel(lvl), lvl)
	}
}
