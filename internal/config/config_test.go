package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SYNC_DB_PATH", "SYNC_TEMP_DIR", "LOG_LEVEL", "SYNC_STRICTNESS", "SYNC_FFMPEG", "SYNC_FFPROBE", "SYNC_WORKERS"} {
		t.Setenv(k, "")
	}
}

const sample = `
db_path = "/data/sync.sqlite3"
log_level = "debug"
log_json = true

[sync]
strictness = "high"
placement = "tail_bin"
frame_rate = 29.97
gap_threshold = "2m"
anchor_window = "3s"
workers = 3

[audio]
sample_rate = 22050

[server]
addr = "127.0.0.1:9000"
`

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "medium", cfg.Strictness)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Len(t, cfg.EngineOptions(), 8)
}

func TestResolveFile(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()
	require.NoError(t, Resolve(&cfg, writeConfig(t, sample), true, nil))

	assert.Equal(t, "/data/sync.sqlite3", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, "high", cfg.Strictness)
	assert.Equal(t, "tail_bin", cfg.PlacementMode)
	assert.Equal(t, 29.97, cfg.FrameRate)
	assert.Equal(t, 2*time.Minute, cfg.GapThreshold)
	assert.Equal(t, 3*time.Second, cfg.AnchorWindow)
	assert.Equal(t, 30*time.Second, cfg.WindowHalfWidth, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, "127.0.0.1:9000", cfg.ServerAddr)
}

func TestResolvePrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYNC_DB_PATH", "/env/sync.sqlite3")
	t.Setenv("SYNC_WORKERS", "5")

	cfg := DefaultConfig()
	// Flags already parsed into cfg.
	cfg.Strictness = "low"
	cfg.Workers = 7
	changed := map[string]bool{"strictness": true, "workers": true}

	require.NoError(t, Resolve(&cfg, writeConfig(t, sample), true, changed))
	assert.Equal(t, "low", cfg.Strictness, "flag beats file")
	assert.Equal(t, 7, cfg.Workers, "flag beats env")
	assert.Equal(t, "/env/sync.sqlite3", cfg.DBPath, "env beats file")
	assert.Equal(t, "tail_bin", cfg.PlacementMode, "file beats default")
}

func TestResolveMissingFile(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "nope.toml")

	cfg := DefaultConfig()
	require.NoError(t, Resolve(&cfg, missing, false, nil))

	cfg = DefaultConfig()
	assert.Error(t, Resolve(&cfg, missing, true, nil))
}

func TestResolveErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"bad toml", "db_path = "},
		{"bad duration", "[sync]\ngap_threshold = \"soon\""},
		{"bad strictness", "[sync]\nstrictness = \"extreme\""},
		{"bad placement", "[sync]\nplacement = \"random\""},
		{"bad level", "log_level = \"loud\""},
		{"low sample rate", "[audio]\nsample_rate = 4000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			assert.Error(t, Resolve(&cfg, writeConfig(t, tt.body), true, nil))
		})
	}

	t.Run("bad env", func(t *testing.T) {
		t.Setenv("SYNC_WORKERS", "many")
		cfg := DefaultConfig()
		assert.Error(t, Resolve(&cfg, filepath.Join(t.TempDir(), "none.toml"), false, nil))
	})
}
