// Package devserver is a stand-in for the lip-reading service. It keeps
// sessions the same way the real service does and answers with canned
// results, so the client can be exercised without a model.
package devserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lipread.town/webcam"
)

type Config struct {
	MinFrames int
	Result    string
}

type recording struct {
	recording bool
	frames    int
	face      bool
	speaking  bool
	prev      *thumb
	started   time.Time
}

type Server struct {
	cfg    Config
	log    *log.Logger
	router *chi.Mux

	mu       sync.Mutex
	sessions map[string]*recording
}

func New(cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Result == "" {
		cfg.Result = "No speech detected"
	}

	s := &Server{
		cfg:      cfg,
		log:      logger,
		sessions: map[string]*recording{},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoutes)
	r.Route("/api/webcam", func(r chi.Router) {
		r.Post("/start-session", s.handleStartSession)
		r.Post("/toggle-recording", s.handleToggleRecording)
		r.Post("/process-frame", s.handleProcessFrame)
		r.Post("/process-session", s.handleProcessSession)
	})
	r.Post(webcam.UploadPath, s.handleUpload)

	s.router = r
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.log.Info("listening", "url", fmt.Sprintf("http://localhost%s", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// sessionKey prefers the client's session header and falls back to its
// address.
func sessionKey(r *http.Request) string {
	if id := r.Header.Get(webcam.SessionHeader); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) lookup(r *http.Request) (string, *recording) {
	key := sessionKey(r)
	return key, s.sessions[key]
}

type response map[string]any

func writeJSON(w http.ResponseWriter, v response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, msg string) {
	writeJSON(w, response{"success": false, "error": msg})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		_, err := fmt.Fprintf(w, "%-6s %s\n", method, route)
		return err
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)

	s.mu.Lock()
	s.sessions[key] = &recording{}
	s.mu.Unlock()

	s.log.Info("session started", "session", key)
	writeJSON(w, response{"success": true, "message": "Session started"})
}

func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, sess := s.lookup(r)
	if sess == nil {
		fail(w, "No active session")
		return
	}

	sess.recording = !sess.recording
	if sess.recording {
		sess.frames = 0
		sess.face, sess.speaking = false, false
		sess.prev = nil
		sess.started = time.Now()
		s.log.Info("recording started", "session", key)
		writeJSON(w, response{"success": true, "recording": true, "message": "Recording started"})
		return
	}

	s.log.Info("recording stopped", "session", key, "frames", sess.frames, "elapsed", time.Since(sess.started).Round(time.Millisecond))
	writeJSON(w, response{"success": true, "recording": false, "message": "Recording stopped"})
}

type frameRequest struct {
	Frame string `json:"frame"`
}

func (s *Server) handleProcessFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Frame == "" {
		fail(w, "No frame data provided")
		return
	}

	s.mu.Lock()
	_, sess := s.lookup(r)
	if sess == nil {
		s.mu.Unlock()
		fail(w, "No active session")
		return
	}
	if !sess.recording {
		s.mu.Unlock()
		writeJSON(w, response{"success": true, "face_detected": false, "speaking_detected": false, "recording": false})
		return
	}
	s.mu.Unlock()

	data, err := base64.StdEncoding.DecodeString(req.Frame)
	if err != nil {
		fail(w, fmt.Sprintf("invalid frame encoding: %v", err))
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		fail(w, fmt.Sprintf("invalid frame: %v", err))
		return
	}
	t := thumbnail(img)

	s.mu.Lock()
	defer s.mu.Unlock()
	key, sess := s.lookup(r)
	if sess == nil || !sess.recording {
		writeJSON(w, response{"success": true, "face_detected": false, "speaking_detected": false, "recording": false})
		return
	}

	sess.face = t.spread() >= minSpread
	sess.speaking = sess.face && t.lowerDelta(sess.prev) >= speakingDelta
	sess.prev = t
	sess.frames++
	s.log.Debug("frame", "session", key, "n", sess.frames, "face", sess.face, "speaking", sess.speaking)

	writeJSON(w, response{
		"success":           true,
		"face_detected":     sess.face,
		"speaking_detected": sess.speaking,
		"recording":         sess.recording,
		"frame_count":       sess.frames,
	})
}

func (s *Server) handleProcessSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, sess := s.lookup(r)
	if sess == nil {
		fail(w, "No active session")
		return
	}

	if sess.frames < s.cfg.MinFrames {
		writeJSON(w, response{"success": true, "result": "Recording too short - need at least 2 seconds"})
		return
	}

	s.log.Info("processing session", "session", key, "frames", sess.frames)
	sess.frames = 0
	sess.face, sess.speaking = false, false
	sess.prev = nil

	writeJSON(w, response{"success": true, "result": s.cfg.Result})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, hdr, err := r.FormFile("video")
	if err != nil {
		fail(w, "No video file provided")
		return
	}
	defer file.Close()

	if hdr.Filename == "" {
		fail(w, "No file selected")
		return
	}
	if !webcam.SupportedVideo(hdr.Filename) {
		fail(w, "Unsupported file format")
		return
	}

	n, err := io.Copy(io.Discard, file)
	if err != nil {
		fail(w, err.Error())
		return
	}
	s.log.Info("video uploaded", "file", hdr.Filename, "bytes", n)
	writeJSON(w, response{"success": true, "result": s.cfg.Result})
}
