package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/ersonp/relgraph/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LogConfig{Level: "debug", Format: "json"}, zapcore.AddSync(&buf))

	logger.Debug("created relationship", zap.String("id", "rel-1"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "created relationship", entry["msg"])
	assert.Equal(t, "rel-1", entry["id"])
	assert.Equal(t, "relgraph", entry["logger"])
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		logged bool
	}{
		{name: "warn hides info", level: "warn", logged: false},
		{name: "info shows info", level: "info", logged: true},
		{name: "unknown level falls back to info", level: "loud", logged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(config.LogConfig{Level: tt.level, Format: "console"}, zapcore.AddSync(&buf))
			logger.Info("hello")
			assert.Equal(t, tt.logged, buf.Len() > 0)
		})
	}
}

func TestNewWithWriter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relgraph.log")
	var buf bytes.Buffer
	logger := NewWithWriter(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, zapcore.AddSync(&buf))

	logger.Info("to both")
	require.NoError(t, logger.Sync())

	assert.FileExists(t, path)
	assert.Contains(t, buf.String(), "to both")
}
