package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "LIPREAD"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Recording RecordingConfig `mapstructure:"recording"`
	Log       LogConfig       `mapstructure:"log"`
	History   HistoryConfig   `mapstructure:"history"`
	DevServer DevServerConfig `mapstructure:"devserver"`
}

type ServerConfig struct {
	URL            string        `mapstructure:"url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout" validate:"gt=0"`
}

type CaptureConfig struct {
	FFmpeg       string        `mapstructure:"ffmpeg" validate:"required"`
	Format       string        `mapstructure:"format"`
	Device       string        `mapstructure:"device" validate:"required"`
	Width        int           `mapstructure:"width" validate:"gt=0"`
	Height       int           `mapstructure:"height" validate:"gt=0"`
	Quality      int           `mapstructure:"quality" validate:"min=1,max=100"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"gte=0"`
}

// RecordingConfig holds the knobs that differed between the observed
// variants of the live flow.
type RecordingConfig struct {
	FramePeriod    time.Duration `mapstructure:"frame_period" validate:"gte=10ms"`
	Indicators     bool          `mapstructure:"indicators"`
	IndicatorOrder string        `mapstructure:"indicator_order" validate:"oneof=issue arrival"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File  string `mapstructure:"file"`
}

type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type DevServerConfig struct {
	Port      int    `mapstructure:"port" validate:"gt=0,lt=65536"`
	MinFrames int    `mapstructure:"min_frames" validate:"gte=0"`
	Result    string `mapstructure:"result"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "http://localhost:5000")
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.process_timeout", 2*time.Minute)

	v.SetDefault("capture.ffmpeg", "ffmpeg")
	v.SetDefault("capture.format", defaultCaptureFormat())
	v.SetDefault("capture.device", defaultCaptureDevice())
	v.SetDefault("capture.width", 640)
	v.SetDefault("capture.height", 480)
	v.SetDefault("capture.quality", 95)
	v.SetDefault("capture.probe_timeout", 3*time.Second)

	v.SetDefault("recording.frame_period", 100*time.Millisecond)
	v.SetDefault("recording.indicators", true)
	v.SetDefault("recording.indicator_order", "issue")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "lipread.log")

	v.SetDefault("history.dsn", "")

	v.SetDefault("devserver.port", 5000)
	v.SetDefault("devserver.min_frames", 30)
	v.SetDefault("devserver.result", "No speech detected")
}

// Init prepares v to read config.yaml from the working directory or the
// user config directory, or from path when it is not empty.
func Init(v *viper.Viper, path string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "lipread"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Path returns the file Write should target when none was read.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "lipread", "config.yaml")
}

// Write persists the settings held by v, creating the directory if needed.
func Write(v *viper.Viper, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
