package app_test

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avstrong/staybook/internal/app"
	"github.com/avstrong/staybook/internal/config"
	"github.com/avstrong/staybook/internal/logger"
)

func TestRunReportsListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = busy.Close() })

	_, port, err := net.SplitHostPort(busy.Addr().String())
	require.NoError(t, err)

	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("HTTP_HOST", "127.0.0.1")
	t.Setenv("HTTP_PORT", port)
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "")

	conf, err := config.Load()
	require.NoError(t, err)

	err = app.Run(logger.Nop(), conf)
	require.Error(t, err)
	assert.ErrorContains(t, err, "run http server")
}
