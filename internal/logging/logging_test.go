package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = New("production", "loud")
	assert.Error(t, err)
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, zapcore.InfoLevel)

	logger.Warn("csrf_rejected", Security(), zap.String("path", "/admin/apps/1/delete"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "csrf_rejected", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, true, entry["security_event"])
	assert.NotEmpty(t, entry["ts"])
}
