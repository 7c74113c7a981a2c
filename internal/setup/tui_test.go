package setup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/tally/config"
)

func TestAnswers_WriteLoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.yaml")

	a := defaultAnswers()
	a.storage = config.StorageSQLite
	a.dsn = "tally.db"
	a.pollIntervalStr = "10s"
	a.maxRetriesStr = "2"
	a.logLevel = "debug"
	require.NoError(t, a.write(path))

	c, err := config.FromFile(path)
	require.NoError(t, err)
	require.Equal(t, config.StorageSQLite, c.Storage)
	require.Equal(t, "tally.db", c.DSN)
	require.Equal(t, 10*time.Second, c.PollInterval)
	require.Equal(t, 2, c.MaxRetries)
	require.Equal(t, config.DefaultRetryInterval, c.RetryInterval)
	require.Equal(t, zapcore.DebugLevel, c.LogLevel)
}

func TestAnswers_DefaultsAreValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.yaml")
	require.NoError(t, defaultAnswers().write(path))

	c, err := config.FromFile(path)
	require.NoError(t, err)
	require.Equal(t, config.StorageWAL, c.Storage)
	require.Equal(t, config.DefaultWALDir, c.WALDir)
	require.Empty(t, c.DSN)
}

func TestValidators(t *testing.T) {
	require.NoError(t, validateDuration("5m"))
	require.Error(t, validateDuration("5"))
	require.Error(t, validateDuration("-1s"))

	require.NoError(t, validateRetries("0"))
	require.Error(t, validateRetries("-2"))
	require.Error(t, validateRetries("x"))

	require.Error(t, notEmpty("dsn")(""))
	require.NoError(t, notEmpty("dsn")("tally.db"))
}
