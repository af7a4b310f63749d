package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lipread.town/config"
	"lipread.town/webcam"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <video>",
	Short: "Send a recorded video and print what was said",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logs := stderrLoggers(cfg.Log.Level)
		asJSON, _ := cmd.Flags().GetBool("json")

		if err := uploadVideo(cmd.Context(), cfg, args[0], asJSON, os.Stdout, logs); err != nil {
			logs.main.Fatal("upload failed", "file", args[0], "error", err)
		}
	},
}

func init() {
	uploadCmd.Flags().Bool("json", false, "Print the service's raw JSON reply")
}

func uploadVideo(ctx context.Context, cfg *config.Config, path string, asJSON bool, out io.Writer, logs loggers) error {
	client := webcam.NewClient(webcam.Config{
		BaseURL:        cfg.Server.URL,
		RequestTimeout: cfg.Server.RequestTimeout,
		ProcessTimeout: cfg.Server.ProcessTimeout,
	}, logs.net)

	logs.main.Info("uploading", "file", path)
	res, err := client.UploadVideo(ctx, path)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(json.RawMessage(res.Raw))
	}
	_, err = fmt.Fprintln(out, res.Text)
	return err
}
