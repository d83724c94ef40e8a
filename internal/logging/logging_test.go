package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mtlsbridge/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.Logging{Level: "warn", Encoding: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Named("dispatch").Warn("kept", zap.String("client", "billing"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "dispatch", entry["logger"])
	assert.Equal(t, "billing", entry["client"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.Logging{}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewRejects(t *testing.T) {
	_, err := New(config.Logging{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New(config.Logging{Encoding: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
