package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/npezzotti/go-classroom/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\nredis_url: redis://file:6379\n"), 0o600))
	t.Setenv("CLASSROOM_LOG_LEVEL", "warn")

	root := newRootCmd()
	start, _, err := root.Find([]string{"start"})
	require.NoError(t, err)
	require.NoError(t, start.ParseFlags([]string{
		"--config", path,
		"--addr", ":9100",
		"--allowed-origins", "http://a.test,http://b.test",
	}))

	opts := &options{}
	opts.configPath, _ = start.Flags().GetString("config")
	opts.addr, _ = start.Flags().GetString("addr")
	opts.allowedOrigins, _ = start.Flags().GetStringSlice("allowed-origins")

	cfg, err := loadConfig(start, opts)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr, "flag beats file")
	assert.Equal(t, "redis://file:6379", cfg.RedisURL, "file value kept without a flag")
	assert.Equal(t, "warn", cfg.LogLevel, "env value kept without a flag")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.NotEmpty(t, cfg.SigningKey)
}

func TestMigrate_RequiresDSN(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"migrate"})

	err := root.Execute()
	assert.ErrorContains(t, err, "dsn")
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg.LogLevel = "loud"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}
