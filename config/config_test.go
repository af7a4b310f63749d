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

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Server.URL)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Server.ProcessTimeout)
	assert.Equal(t, 95, cfg.Capture.Quality)
	assert.Equal(t, 100*time.Millisecond, cfg.Recording.FramePeriod)
	assert.True(t, cfg.Recording.Indicators)
	assert.Equal(t, "issue", cfg.Recording.IndicatorOrder)
	assert.Equal(t, 30, cfg.DevServer.MinFrames)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
server:
  url: http://inference.internal:8080
  request_timeout: 3s
recording:
  frame_period: 40ms
  indicators: false
  indicator_order: arrival
`), 0o644)
	require.NoError(t, err)

	v := viper.New()
	require.NoError(t, Init(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://inference.internal:8080", cfg.Server.URL)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Server.ProcessTimeout)
	assert.Equal(t, 40*time.Millisecond, cfg.Recording.FramePeriod)
	assert.False(t, cfg.Recording.Indicators)
	assert.Equal(t, "arrival", cfg.Recording.IndicatorOrder)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LIPREAD_SERVER_URL", "http://10.0.0.7:5000")
	t.Setenv("LIPREAD_RECORDING_FRAME_PERIOD", "250ms")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	v := viper.New()
	require.NoError(t, Init(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.7:5000", cfg.Server.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Recording.FramePeriod)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitMissingExplicitFile(t *testing.T) {
	v := viper.New()
	err := Init(v, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"bad url", "server.url", "not a url"},
		{"zero timeout", "server.request_timeout", 0},
		{"quality out of range", "capture.quality", 101},
		{"unknown order", "recording.indicator_order", "random"},
		{"period too short", "recording.frame_period", time.Millisecond},
		{"unknown level", "log.level", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)

			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestWrite(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("server.url", "http://example.test")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Write(v, path))

	w := viper.New()
	require.NoError(t, Init(w, path))
	cfg, err := Load(w)
	require.NoError(t, err)
	assert.Equal(t, "http://example.test", cfg.Server.URL)
}
