package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lipread.town/config"
	"lipread.town/history"
)

var (
	errNoHistory = errors.New("history.dsn is not set")
	errBadLimit  = errors.New("--limit must be at least 1")
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent recording sessions",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logs := stderrLoggers(cfg.Log.Level)
		limit, _ := cmd.Flags().GetInt("limit")

		if err := listHistory(cmd.Context(), cfg, limit, os.Stdout, logs); err != nil {
			logs.main.Fatal("history", "error", err)
		}
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Number of sessions to show")
}

func listHistory(ctx context.Context, cfg *config.Config, limit int, out io.Writer, logs loggers) error {
	if limit < 1 {
		return fmt.Errorf("%w, got %d", errBadLimit, limit)
	}
	if cfg.History.DSN == "" {
		return errNoHistory
	}

	store, err := history.Open(ctx, cfg.History.DSN, logs.data)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	history.RenderTable(out, rows)
	return nil
}
