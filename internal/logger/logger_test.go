package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avstrong/staybook/internal/logger"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := logger.New(&bytes.Buffer{}, "loud")
	require.Error(t, err)
}

func TestLogWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer

	l, err := logger.New(&buf, "info")
	require.NoError(t, err)

	l.WithFields(map[string]any{"booking": "BK-1"}).WithError(errors.New("boom")).LogErrorf("failed %d times", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "failed 2 times", entry["msg"])
	assert.Equal(t, "BK-1", entry["booking"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer

	l, err := logger.New(&buf, "info")
	require.NoError(t, err)

	l.LogDebugf("hidden")
	assert.Zero(t, buf.Len())

	l.LogInfo("shown")
	assert.Contains(t, buf.String(), "shown")
}
