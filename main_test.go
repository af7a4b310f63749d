package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lipread.town/capture"
	"lipread.town/config"
	"lipread.town/devserver"
	"lipread.town/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	require.NoError(t, config.Init(v, ""))
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func quietLoggers() loggers {
	return createLoggers(io.Discard, "error")
}

func TestCreateLoggersPrefix(t *testing.T) {
	var buf bytes.Buffer
	logs := createLoggers(&buf, "debug")

	logs.cam.Info("capture started", "input", "/dev/video0")
	assert.Contains(t, buf.String(), "cam")
	assert.Contains(t, buf.String(), "capture started")

	buf.Reset()
	logs.net.Debug("request")
	assert.Contains(t, buf.String(), "net")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, parseLevel("debug"))
	assert.Equal(t, log.WarnLevel, parseLevel("warn"))
	assert.Equal(t, log.InfoLevel, parseLevel("loud"))
}

func TestOpenLogFile(t *testing.T) {
	w := openLogFile("")
	_, err := w.Write([]byte("dropped"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "lipread.log")
	w = openLogFile(path)
	_, err = w.Write([]byte("kept\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept\n", string(data))
}

func TestNewDevice(t *testing.T) {
	cfg := testConfig(t)
	logs := quietLoggers()

	d, err := newDevice(cfg, "", "", logs)
	require.NoError(t, err)
	ff, ok := d.(*capture.FFmpegDevice)
	require.True(t, ok)
	assert.Equal(t, cfg.Capture.Device, ff.Input)
	assert.Equal(t, cfg.Capture.Format, ff.Format)

	video := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(video, nil, 0o644))
	d, err = newDevice(cfg, video, "", logs)
	require.NoError(t, err)
	ff = d.(*capture.FFmpegDevice)
	assert.Equal(t, video, ff.Input)
	assert.Empty(t, ff.Format)

	_, err = newDevice(cfg, filepath.Join(t.TempDir(), "missing.mp4"), "", logs)
	assert.Error(t, err)

	_, err = newDevice(cfg, "", filepath.Join(t.TempDir(), "missing.png"), logs)
	assert.Error(t, err)
}

func TestNewController(t *testing.T) {
	cfg := testConfig(t)

	ctrl, err := newController(cfg, &capture.StillDevice{}, nil)
	require.NoError(t, err)
	assert.Equal(t, session.Idle, ctrl.Snapshot().State)

	cfg.Recording.IndicatorOrder = "sideways"
	_, err = newController(cfg, &capture.StillDevice{}, nil)
	assert.Error(t, err)
}

func TestUploadVideo(t *testing.T) {
	srv := httptest.NewServer(devserver.New(devserver.Config{Result: "bin blue at a one now"}, log.New(io.Discard)).Router())
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.Server.URL = srv.URL

	path := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(path, []byte("frames"), 0o644))

	var out bytes.Buffer
	require.NoError(t, uploadVideo(context.Background(), cfg, path, false, &out, quietLoggers()))
	assert.Equal(t, "bin blue at a one now\n", out.String())

	out.Reset()
	require.NoError(t, uploadVideo(context.Background(), cfg, path, true, &out, quietLoggers()))
	var reply map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &reply))
	assert.Equal(t, true, reply["success"])
	assert.Equal(t, "bin blue at a one now", reply["result"])
}

func TestListHistoryNeedsDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.DSN = ""
	err := listHistory(context.Background(), cfg, 10, io.Discard, quietLoggers())
	assert.ErrorIs(t, err, errNoHistory)
}

func TestListHistoryRejectsLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.DSN = "postgres://localhost:1/none"
	for _, limit := range []int{0, -1} {
		err := listHistory(context.Background(), cfg, limit, io.Discard, quietLoggers())
		assert.ErrorIs(t, err, errBadLimit, "limit %d", limit)
	}
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, validateURL("http://localhost:5000"))
	assert.NoError(t, validateURL("https://lipread.example.com"))
	assert.Error(t, validateURL("ftp://localhost"))
	assert.Error(t, validateURL("http://"))
}

func TestSetupAnswersApply(t *testing.T) {
	v := viper.New()
	a := setupAnswers{
		ServerURL: "http://10.0.0.2:5000",
		Device:    "/dev/video2",
		Period:    "200ms",
	}
	a.apply(v)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Write(v, path))

	loaded := viper.New()
	require.NoError(t, config.Init(loaded, path))
	cfg, err := config.Load(loaded)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:5000", cfg.Server.URL)
	assert.Equal(t, "/dev/video2", cfg.Capture.Device)
	assert.Equal(t, "200ms", cfg.Recording.FramePeriod.String())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"live", "upload", "serve", "history", "setup"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, liveCmd.Flags().Lookup("still"))
	assert.NotNil(t, uploadCmd.Flags().Lookup("json"))
}
