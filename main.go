package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lipread.town/config"
)

var (
	cfgFile string
	logger  *log.Logger
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(setupCmd)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or $HOME/.config/lipread/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "Lip-reading service base URL")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	logger = log.New(os.Stderr)
	if err := config.Init(viper.GetViper(), cfgFile); err != nil {
		logger.Fatal("config", "error", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("using config", "file", used)
	}
}

// loadConfig decodes the settings gathered by initConfig and flags.
func loadConfig() *config.Config {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Fatal("config", "error", err)
	}
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "lipread",
	Short: "Lip reading from your camera or a video file",
	Long: `lipread sends video to a lip-reading service and shows what was said.

Record live from a camera with "lipread live", send a finished video with
"lipread upload", or run a stand-in service locally with "lipread serve".`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
