package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lipread.town/config"
	"lipread.town/devserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local stand-in for the lip-reading service",
	Long: `serve answers the same endpoints as the lip-reading service. It
judges face and speaking from image contrast and returns a fixed result,
which is enough to try the live flow without a model.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logs := stderrLoggers(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := serve(ctx, cfg, logs); err != nil {
			logs.main.Fatal("serve", "error", err)
		}
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("result", "", "Text returned when a session is processed")
	viper.BindPFlag("devserver.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("devserver.result", serveCmd.Flags().Lookup("result"))
}

func serve(ctx context.Context, cfg *config.Config, logs loggers) error {
	srv := devserver.New(devserver.Config{
		MinFrames: cfg.DevServer.MinFrames,
		Result:    cfg.DevServer.Result,
	}, logs.http)
	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.DevServer.Port))
}
