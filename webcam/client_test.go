package webcam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lipread.town/capture"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:        srv.URL,
		RequestTimeout: 500 * time.Millisecond,
		ProcessTimeout: time.Second,
	}, log.New(io.Discard))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestStartSessionSendsSessionHeader(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, StartSessionPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		got = r.Header.Get(SessionHeader)
		writeJSON(w, map[string]any{"success": true, "message": "Session started"})
	})

	res, err := c.StartSession(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, c.SessionID(), got)
}

func TestToggleRecording(t *testing.T) {
	recording := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		recording = !recording
		writeJSON(w, map[string]any{"success": true, "recording": recording})
	})

	res, err := c.ToggleRecording(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Recording)

	res, err = c.ToggleRecording(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Recording)
}

func TestToggleRefused(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": false, "error": "No active session"})
	})

	_, err := c.ToggleRecording(context.Background())
	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "toggle-recording", ne.Op)
	assert.Equal(t, "No active session", Describe(err))
}

func TestSubmitFrame(t *testing.T) {
	frame := capture.Frame{Data: []byte{0xff, 0xd8, 0xff, 0xd9}}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ProcessFramePath, r.URL.Path)
		var body struct {
			Frame string `json:"frame"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		data, err := base64.StdEncoding.DecodeString(body.Frame)
		require.NoError(t, err)
		assert.Equal(t, frame.Data, data)

		writeJSON(w, map[string]any{
			"success":           true,
			"face_detected":     true,
			"speaking_detected": false,
			"recording":         true,
			"frame_count":       12,
		})
	})

	res, err := c.SubmitFrame(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, FrameResult{FaceDetected: true, Recording: true, FrameCount: 12}, res)
}

func TestSubmitSessionServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": false, "error": "no speech"})
	})

	_, err := c.SubmitSession(context.Background())
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "no speech", se.Message)
	assert.Equal(t, "no speech", Describe(err))
}

func TestSubmitSessionResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(body))
		writeJSON(w, map[string]any{"success": true, "result": "place blue at f two now"})
	})

	res, err := c.SubmitSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "place blue at f two now", res.Text)
}

func TestNetworkFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			status: http.StatusInternalServerError,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
			status: http.StatusOK,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.StartSession(context.Background())
			var ne *NetworkError
			require.True(t, errors.As(err, &ne), "got %v", err)
			assert.Equal(t, tt.status, ne.Status)
		})
	}
}

func TestErrorStatusCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success": false, "error": "Invalid frame"}`))
	})

	_, err := c.SubmitFrame(context.Background(), capture.Frame{Data: []byte{1}})
	var ne *NetworkError
	require.True(t, errors.As(err, &ne), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, ne.Status)
	assert.Equal(t, "Invalid frame", ne.Message)
	assert.NoError(t, ne.Err)
	assert.Equal(t, "Invalid frame", Describe(err))
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, RequestTimeout: time.Second}, log.New(io.Discard))
	_, err := c.SubmitFrame(context.Background(), capture.Frame{})
	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Error(t, ne.Err)
}

func TestUploadVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UploadPath, r.URL.Path)
		f, hdr, err := r.FormFile("video")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "clip.mp4", hdr.Filename)
		writeJSON(w, map[string]any{"success": true, "result": ""})
	})

	res, err := c.UploadVideo(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "No speech detected", res.Text)
	assert.NotEmpty(t, res.Raw)
}

func TestUploadRejectsExtension(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	_, err := c.UploadVideo(context.Background(), "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.True(t, SupportedVideo("CLIP.MOV"))
}
