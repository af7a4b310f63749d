package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"lipread.town/capture"
	"lipread.town/config"
	"lipread.town/history"
	"lipread.town/session"
	"lipread.town/ui"
	"lipread.town/webcam"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Record from a camera and read lips as you speak",
	Run:   runLive,
}

func init() {
	liveCmd.Flags().String("device", "", "Camera device passed to ffmpeg")
	liveCmd.Flags().String("format", "", "ffmpeg input format (v4l2, avfoundation, dshow)")
	liveCmd.Flags().String("video", "", "Loop a video file instead of opening a camera")
	liveCmd.Flags().String("still", "", "Serve a single PNG or JPEG image instead of opening a camera")
	liveCmd.Flags().Duration("period", 0, "Time between frames while recording")
	liveCmd.Flags().Bool("indicators", true, "Show face and speaking indicators")
	liveCmd.Flags().String("order", "", "Indicator update order (issue or arrival)")
	liveCmd.Flags().Bool("no-activate", false, "Wait for 'a' instead of opening the camera at start")

	viper.BindPFlag("capture.device", liveCmd.Flags().Lookup("device"))
	viper.BindPFlag("capture.format", liveCmd.Flags().Lookup("format"))
	viper.BindPFlag("recording.frame_period", liveCmd.Flags().Lookup("period"))
	viper.BindPFlag("recording.indicators", liveCmd.Flags().Lookup("indicators"))
	viper.BindPFlag("recording.indicator_order", liveCmd.Flags().Lookup("order"))
}

func runLive(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	logFile := openLogFile(cfg.Log.File)
	defer logFile.Close()
	logs := createLoggers(logFile, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	video, _ := cmd.Flags().GetString("video")
	still, _ := cmd.Flags().GetString("still")
	device, err := newDevice(cfg, video, still, logs)
	if err != nil {
		logger.Fatal("camera", "error", err)
	}

	client := webcam.NewClient(webcam.Config{
		BaseURL:        cfg.Server.URL,
		RequestTimeout: cfg.Server.RequestTimeout,
		ProcessTimeout: cfg.Server.ProcessTimeout,
	}, logs.net)

	opts := []session.Option{session.WithLogger(logs.ctrl)}
	if cfg.History.DSN != "" {
		store, err := history.Open(ctx, cfg.History.DSN, logs.data)
		if err != nil {
			logger.Fatal("history", "error", err)
		}
		defer store.Close()
		opts = append(opts, session.WithJournal(store))
	}

	ctrl, err := newController(cfg, device, client, opts...)
	if err != nil {
		logger.Fatal("config", "error", err)
	}

	noActivate, _ := cmd.Flags().GetBool("no-activate")
	logs.main.Info("starting", "server", cfg.Server.URL, "session", client.SessionID())

	if err := runSession(ctx, ctrl, !noActivate); err != nil {
		logger.Fatal("live", "error", err)
	}
	logs.main.Info("stopped")
}

// runSession drives ctrl until the terminal UI exits or ctx is cancelled.
func runSession(ctx context.Context, ctrl *session.Controller, activate bool) error {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrl.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		if activate {
			if err := ctrl.Activate(); err != nil {
				return fmt.Errorf("failed to activate: %w", err)
			}
		}
		return ui.Run(ctx, ctrl)
	})

	return g.Wait()
}

func newDevice(cfg *config.Config, video, still string, logs loggers) (capture.Device, error) {
	if still != "" {
		return capture.LoadStill(still)
	}

	d := &capture.FFmpegDevice{
		Binary:       cfg.Capture.FFmpeg,
		Format:       cfg.Capture.Format,
		Input:        cfg.Capture.Device,
		ProbeTimeout: cfg.Capture.ProbeTimeout,
		Logger:       logs.cam,
	}
	if video != "" {
		if _, err := os.Stat(video); err != nil {
			return nil, err
		}
		d.Format = ""
		d.Input = video
	}
	return d, nil
}

func newController(cfg *config.Config, device capture.Device, client session.Client, opts ...session.Option) (*session.Controller, error) {
	order, err := session.ParseOrder(cfg.Recording.IndicatorOrder)
	if err != nil {
		return nil, err
	}

	return session.New(session.Config{
		FramePeriod: cfg.Recording.FramePeriod,
		Indicators:  cfg.Recording.Indicators,
		Order:       order,
		Constraints: capture.Constraints{
			Width:  cfg.Capture.Width,
			Height: cfg.Capture.Height,
		},
		Quality: cfg.Capture.Quality,
	}, device, client, opts...), nil
}
