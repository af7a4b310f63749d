// Package webcam talks to the lip-reading service: the live session
// endpoints and the one-shot video upload.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"lipread.town/capture"
)

const (
	StartSessionPath    = "/api/webcam/start-session"
	ToggleRecordingPath = "/api/webcam/toggle-recording"
	ProcessFramePath    = "/api/webcam/process-frame"
	ProcessSessionPath  = "/api/webcam/process-session"
	UploadPath          = "/api/upload/video"

	SessionHeader = "X-Session-ID"
)

type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	ProcessTimeout time.Duration
}

type Client struct {
	http      *resty.Client
	sessionID string
	cfg       Config
	log       *log.Logger
}

func NewClient(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 2 * time.Minute
	}

	id := uuid.NewString()
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader(SessionHeader, id).
		SetHeader("Accept", "application/json")

	return &Client{
		http:      rc,
		sessionID: id,
		cfg:       cfg,
		log:       logger,
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

type StartResult struct {
	Accepted bool
}

type ToggleResult struct {
	Recording bool
}

type FrameResult struct {
	FaceDetected     bool
	SpeakingDetected bool
	Recording        bool
	FrameCount       int
}

type SessionResult struct {
	Text string
}

type reply struct {
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	Message          string `json:"message,omitempty"`
	Recording        bool   `json:"recording"`
	FaceDetected     bool   `json:"face_detected"`
	SpeakingDetected bool   `json:"speaking_detected"`
	FrameCount       int    `json:"frame_count"`
	Result           string `json:"result"`
}

type frameRequest struct {
	Frame string `json:"frame"`
}

func (c *Client) StartSession(ctx context.Context) (StartResult, error) {
	r, err := c.post(ctx, "start-session", StartSessionPath, nil, c.cfg.RequestTimeout)
	if err != nil {
		return StartResult{}, err
	}
	if !r.Success {
		return StartResult{}, refused("start-session", r)
	}
	c.log.Debug("session started", "id", c.sessionID)
	return StartResult{Accepted: true}, nil
}

func (c *Client) ToggleRecording(ctx context.Context) (ToggleResult, error) {
	r, err := c.post(ctx, "toggle-recording", ToggleRecordingPath, nil, c.cfg.RequestTimeout)
	if err != nil {
		return ToggleResult{}, err
	}
	if !r.Success {
		return ToggleResult{}, refused("toggle-recording", r)
	}
	c.log.Debug("recording toggled", "recording", r.Recording)
	return ToggleResult{Recording: r.Recording}, nil
}

func (c *Client) SubmitFrame(ctx context.Context, f capture.Frame) (FrameResult, error) {
	body := frameRequest{Frame: f.Base64()}
	r, err := c.post(ctx, "process-frame", ProcessFramePath, body, c.cfg.RequestTimeout)
	if err != nil {
		return FrameResult{}, err
	}
	if !r.Success {
		return FrameResult{}, refused("process-frame", r)
	}
	return FrameResult{
		FaceDetected:     r.FaceDetected,
		SpeakingDetected: r.SpeakingDetected,
		Recording:        r.Recording,
		FrameCount:       r.FrameCount,
	}, nil
}

func (c *Client) SubmitSession(ctx context.Context) (SessionResult, error) {
	r, err := c.post(ctx, "process-session", ProcessSessionPath, struct{}{}, c.cfg.ProcessTimeout)
	if err != nil {
		return SessionResult{}, err
	}
	if !r.Success {
		return SessionResult{}, &ServiceError{Op: "process-session", Message: errorText(r)}
	}
	return SessionResult{Text: r.Result}, nil
}

func (c *Client) post(ctx context.Context, op, path string, body any, timeout time.Duration) (*reply, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var r reply
	req := bind(c.http.R().SetContext(ctx), &r)
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Post(path)
	if err := check(op, resp, err, &r, timeout); err != nil {
		return nil, err
	}
	c.log.Debug("request done", "op", op, "status", resp.StatusCode(), "took", time.Since(start).Round(time.Millisecond))
	return &r, nil
}

// bind has resty decode the reply as JSON whatever the status or content
// type, since the service sends the same shape for failures.
func bind(req *resty.Request, r *reply) *resty.Request {
	return req.
		SetResult(r).
		SetError(r).
		ForceContentType("application/json")
}

// check maps a finished request to a NetworkError. A response that arrived
// but could not be decoded keeps its status.
func check(op string, resp *resty.Response, err error, r *reply, timeout time.Duration) error {
	if err != nil {
		if resp == nil || resp.RawResponse == nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("no response after %s: %w", timeout, err)
			}
			return &NetworkError{Op: op, Err: err}
		}
		if resp.IsError() {
			return &NetworkError{Op: op, Status: resp.StatusCode()}
		}
		return &NetworkError{Op: op, Status: resp.StatusCode(), Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if resp.IsError() {
		return &NetworkError{Op: op, Status: resp.StatusCode(), Message: errorText(r)}
	}
	return nil
}

func refused(op string, r *reply) error {
	return &NetworkError{Op: op, Message: errorText(r)}
}

func errorText(r *reply) string {
	if r.Error != "" {
		return r.Error
	}
	if r.Message != "" {
		return r.Message
	}
	return "request was not successful"
}
