package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PARALLEL_ACCOUNTS", "false")
	t.Setenv("PARALLEL_THRESHOLD", "4")
	t.Setenv("FAIL_POLICY", "abort")
	t.Setenv("DUCKDB_PATH", "/tmp/report.db")
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("CSV_SEPARATOR", ";")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.False(t, cfg.ParallelAccounts)
	assert.Equal(t, 4, cfg.ParallelThreshold)
	assert.True(t, cfg.AbortOnError())
	assert.Equal(t, "/tmp/report.db", cfg.DuckDBPath)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, ";", cfg.CSVSeparator)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "PARALLEL_ACCOUNTS", "PARALLEL_THRESHOLD",
		"FAIL_POLICY", "DUCKDB_PATH", "OUTPUT_DIR", "REPLAY_DIR", "CSV_SEPARATOR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.True(t, cfg.ParallelAccounts)
	assert.Equal(t, 8, cfg.ParallelThreshold)
	assert.False(t, cfg.AbortOnError())
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "|", cfg.CSVSeparator)
}

func TestLoadFromEnv_RejectsBadFailPolicy(t *testing.T) {
	t.Setenv("FAIL_POLICY", "explode")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAIL_POLICY")
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), "level %q", in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nLOG_LEVEL=debug\nOUTPUT_DIR=\"/tmp/out\"\n\nNOT_A_PAIR\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LOG_LEVEL", "warn") // already set, must win
	t.Setenv("OUTPUT_DIR", "")
	os.Unsetenv("OUTPUT_DIR")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "warn", os.Getenv("LOG_LEVEL"))
	assert.Equal(t, "/tmp/out", os.Getenv("OUTPUT_DIR"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}
