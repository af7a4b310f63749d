package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lipread.town/config"
	"lipread.town/history"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a config file interactively",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logs := stderrLoggers(cfg.Log.Level)

		answers := setupAnswers{
			ServerURL: cfg.Server.URL,
			Device:    cfg.Capture.Device,
			Period:    cfg.Recording.FramePeriod.String(),
			DSN:       cfg.History.DSN,
		}

		if err := answers.form().Run(); err != nil {
			logs.main.Fatal("setup", "error", err)
		}

		if answers.DSN != "" {
			checkDB := true
			huh.NewConfirm().
				Title("Check the history database now?").
				Value(&checkDB).
				Run()
			if checkDB {
				if err := checkHistory(cmd.Context(), answers.DSN, logs); err != nil {
					logs.main.Fatal("history database", "error", err)
				}
				logs.main.Info("history database ready")
			}
		}

		path := viper.ConfigFileUsed()
		if path == "" {
			path = config.Path()
		}
		answers.apply(viper.GetViper())
		if err := config.Write(viper.GetViper(), path); err != nil {
			logs.main.Fatal("setup", "error", err)
		}
		logs.main.Info("config written", "file", path)
	},
}

type setupAnswers struct {
	ServerURL string
	Device    string
	Period    string
	DSN       string
}

func (a *setupAnswers) form() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Lip-reading service URL").
				Value(&a.ServerURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Camera device").
				Value(&a.Device),
			huh.NewInput().
				Title("Time between frames").
				Description("For example 100ms").
				Value(&a.Period),
			huh.NewInput().
				Title("History database URL").
				Description("Leave empty to keep no history").
				Value(&a.DSN),
		),
	)
}

func (a *setupAnswers) apply(v *viper.Viper) {
	v.Set("server.url", a.ServerURL)
	v.Set("capture.device", a.Device)
	v.Set("recording.frame_period", a.Period)
	v.Set("history.dsn", a.DSN)
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %s", strconv.Quote(u.Scheme))
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func checkHistory(ctx context.Context, dsn string, logs loggers) error {
	store, err := history.Open(ctx, dsn, logs.data)
	if err != nil {
		return err
	}
	store.Close()
	return nil
}
