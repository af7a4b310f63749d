package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// FFmpegDevice reads raw RGBA frames from an ffmpeg subprocess. With an
// empty Format, Input is treated as a video file that is played back in
// real time and looped.
type FFmpegDevice struct {
	Binary       string
	Format       string
	Input        string
	ProbeTimeout time.Duration
	Logger       *log.Logger
}

type ffmpegSource struct {
	cmd    *exec.Cmd
	slot   frameSlot
	stderr *tailBuffer
	first  chan struct{}
	exited chan struct{}
	err    error

	closeOnce sync.Once
	closeErr  error
	logger    *log.Logger
}

func (s *ffmpegSource) Current() image.Image {
	return s.slot.load()
}

func (d *FFmpegDevice) args(c Constraints) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if d.Format == "" {
		args = append(args, "-re", "-stream_loop", "-1", "-i", d.Input)
	} else {
		args = append(args,
			"-f", d.Format,
			"-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height),
			"-i", d.Input,
		)
	}
	return append(args,
		"-vf", "scale="+strconv.Itoa(c.Width)+":"+strconv.Itoa(c.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
}

func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (Source, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, &DeviceError{Reason: Unavailable, Err: fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height)}
	}

	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}

	binary := d.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.Command(binary, d.args(c)...)
	src := &ffmpegSource{
		cmd:    cmd,
		stderr: &tailBuffer{limit: 4096},
		first:  make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger,
	}
	cmd.Stderr = src.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DeviceError{Reason: Unavailable, Err: err}
	}

	logger.Debug("starting ffmpeg", "args", strings.Join(cmd.Args, " "))
	if err := cmd.Start(); err != nil {
		return nil, &DeviceError{Reason: Unavailable, Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	go src.readFrames(stdout, c)

	var probe <-chan time.Time
	if d.ProbeTimeout > 0 {
		timer := time.NewTimer(d.ProbeTimeout)
		defer timer.Stop()
		probe = timer.C
	}

	select {
	case <-src.first:
		logger.Info("capture started", "input", d.Input, "size", fmt.Sprintf("%dx%d", c.Width, c.Height))
		return src, nil
	case <-src.exited:
		return nil, classify(src.stderr.String(), src.err)
	case <-probe:
		logger.Warn("no frame yet, continuing", "input", d.Input, "waited", d.ProbeTimeout)
		return src, nil
	case <-ctx.Done():
		_ = d.Close(src)
		return nil, &DeviceError{Reason: Unavailable, Err: ctx.Err()}
	}
}

func (s *ffmpegSource) readFrames(r io.Reader, c Constraints) {
	var once sync.Once
	for {
		img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
		if _, err := io.ReadFull(r, img.Pix); err != nil {
			break
		}
		s.slot.store(img)
		once.Do(func() { close(s.first) })
	}
	s.err = s.cmd.Wait()
	close(s.exited)
}

func (d *FFmpegDevice) Close(src Source) error {
	s, ok := src.(*ffmpegSource)
	if !ok {
		return errForeignSource
	}

	s.closeOnce.Do(func() {
		select {
		case <-s.exited:
		default:
			if err := s.cmd.Process.Kill(); err != nil {
				s.closeErr = fmt.Errorf("failed to stop ffmpeg: %w", err)
				return
			}
			<-s.exited
		}
		stored, dropped := s.slot.stats()
		s.logger.Info("capture stopped", "frames", stored, "unread", dropped)
	})
	return s.closeErr
}

func classify(stderr string, err error) *DeviceError {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	if msg == "" && err != nil {
		msg = err.Error()
	}

	reason := Unavailable
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "not authorized"),
		strings.Contains(lower, "operation not permitted"):
		reason = PermissionDenied
	case strings.Contains(lower, "no such file or directory"),
		strings.Contains(lower, "no such device"),
		strings.Contains(lower, "could not find"),
		strings.Contains(lower, "not found"):
		reason = NotFound
	}

	if msg == "" {
		msg = "ffmpeg exited before producing a frame"
	}
	return &DeviceError{Reason: reason, Err: fmt.Errorf("%s", lastLine(msg))}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
