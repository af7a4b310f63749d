package webcam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}

type UploadResult struct {
	Text string
	Raw  []byte
}

func SupportedVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range VideoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// UploadVideo sends a whole recording for inference in one request.
func (c *Client) UploadVideo(ctx context.Context, path string) (UploadResult, error) {
	if !SupportedVideo(path) {
		return UploadResult{}, fmt.Errorf("%s: %w (want one of %s)", filepath.Base(path), ErrUnsupportedFormat, strings.Join(VideoExtensions, " "))
	}
	if _, err := os.Stat(path); err != nil {
		return UploadResult{}, fmt.Errorf("failed to read video: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProcessTimeout)
	defer cancel()

	c.log.Info("uploading video", "file", path)
	var r reply
	resp, err := bind(c.http.R().SetContext(ctx), &r).
		SetFile("video", path).
		Post(UploadPath)
	if err := check("upload", resp, err, &r, c.cfg.ProcessTimeout); err != nil {
		return UploadResult{}, err
	}
	if !r.Success {
		return UploadResult{Raw: resp.Body()}, &ServiceError{Op: "upload", Message: errorText(&r)}
	}

	text := strings.TrimSpace(r.Result)
	if text == "" {
		text = "No speech detected"
	}
	return UploadResult{Text: text, Raw: resp.Body()}, nil
}
