package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	v := viper.New()
	require.NoError(t, Init(v, ""))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 0, cfg.Analysis.Workers)
	assert.Equal(t, "en-US", cfg.Analysis.Language)
	assert.Empty(t, cfg.Rules.Path)
	assert.False(t, cfg.Explanation.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Explanation.Timeout)
	assert.Equal(t, 1, cfg.Explanation.Retries)
	assert.Equal(t, 3*time.Second, cfg.Explanation.Backoff)
	assert.Equal(t, 5.0, cfg.Explanation.RateLimit)
	assert.Equal(t, 256, cfg.Explanation.CacheSize)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, int64(5*1024*1024), cfg.Server.MaxUploadBytes)
	assert.False(t, cfg.History.Enabled)
	assert.True(t, filepath.IsAbs(cfg.History.Path))
	assert.Equal(t, "history.duckdb", filepath.Base(cfg.History.Path))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
analysis:
  workers: 4
  language: hi-IN
explanation:
  enabled: true
  endpoint: http://localhost:9000/explain
  backoff: 10ms
server:
  port: 9090
`), 0o644))

	v := viper.New()
	require.NoError(t, Init(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Analysis.Workers)
	assert.Equal(t, "hi-IN", cfg.Analysis.Language)
	assert.True(t, cfg.Explanation.Enabled)
	assert.Equal(t, "http://localhost:9000/explain", cfg.Explanation.Endpoint)
	assert.Equal(t, 10*time.Millisecond, cfg.Explanation.Backoff)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_HomeFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte("history:\n  enabled: true\n"), 0o644))

	v := viper.New()
	require.NoError(t, Init(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(home, ".vibe-pgx", "history.duckdb"), cfg.History.Path)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VIBE_PGX_SERVER_PORT", "7070")
	t.Setenv("VIBE_PGX_LOG_LEVEL", "warn")

	v := viper.New()
	require.NoError(t, Init(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInit_MissingExplicitFile(t *testing.T) {
	v := viper.New()
	err := Init(v, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"bad level", "log.level", "loud"},
		{"bad format", "log.format", "xml"},
		{"negative workers", "analysis.workers", -1},
		{"bad language", "analysis.language", "es-ES"},
		{"explanation without endpoint", "explanation.enabled", true},
		{"bad port", "server.port", 70000},
		{"zero upload", "server.max_upload_bytes", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			require.NoError(t, Init(v, ""))
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		l, err := LogConfig{Level: "debug", Format: format}.NewLogger()
		require.NoError(t, err)
		assert.NotNil(t, l)
	}

	_, err := LogConfig{Level: "nope", Format: "json"}.NewLogger()
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, "a", "b"), ExpandHome("~/a/b"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))
}
