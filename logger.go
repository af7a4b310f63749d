package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type loggers struct {
	main *log.Logger
	cam  *log.Logger
	net  *log.Logger
	ctrl *log.Logger
	http *log.Logger
	data *log.Logger
}

func createLoggers(w io.Writer, level string) loggers {
	base := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           parseLevel(level),
	})
	base.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	for _, lvl := range []log.Level{log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel} {
		styles.Levels[lvl] = styles.Levels[lvl].
			MaxWidth(5).
			MarginRight(1).
			Bold(false)
	}
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))
	base.SetStyles(styles)

	return loggers{
		main: base.With().WithPrefix("main"),
		cam:  base.With().WithPrefix("cam"),
		net:  base.With().WithPrefix("net"),
		ctrl: base.With().WithPrefix("ctrl"),
		http: base.With().WithPrefix("http"),
		data: base.With().WithPrefix("data"),
	}
}

func parseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// openLogFile returns a rotating writer for use while the terminal UI owns
// stdout. An empty path discards logs.
func openLogFile(path string) io.WriteCloser {
	if path == "" {
		return nopCloser{io.Discard}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func stderrLoggers(level string) loggers {
	return createLoggers(os.Stderr, level)
}
