package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EasterCompany/dex-discord-gateway/config"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSONFansOutToExtraWriters(t *testing.T) {
	var out, extra bytes.Buffer
	logger := NewWithOutput(&out, config.LogConfig{Level: "warn", Format: "json"}, &extra)

	logger.Info("dropped")
	logger.Warn("gateway connection lost", "shard", 2)

	require.Equal(t, out.String(), extra.String())
	var line map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "gateway connection lost", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.EqualValues(t, 2, line["shard"])
}

func TestNewFallsBackToInfoOnUnknownLevel(t *testing.T) {
	var out bytes.Buffer
	logger := NewWithOutput(&out, config.LogConfig{Level: "loud", Format: "text"})

	assert.Contains(t, out.String(), "falling back to info logging")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}
