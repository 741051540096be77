// Package config loads aerial's configuration: built-in defaults, then an
// optional YAML file, then AERIAL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/aerial/config.yaml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "AERIAL_CONFIG"

type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Capture   CaptureConfig   `koanf:"capture"`
	Transcode TranscodeConfig `koanf:"transcode"`
	Bif       BifConfig       `koanf:"bif"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type DatabaseConfig struct {
	URL string `koanf:"url"`
	// Pool bounds; the DVR needs one writer per in-flight capture plus the
	// periodic ticks, so the defaults stay small.
	MaxConns int `koanf:"max_conns"`
	MinConns int `koanf:"min_conns"`
}

type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
	RateLimitRPS   float64       `koanf:"rate_limit_rps"`
	RateLimitBurst int           `koanf:"rate_limit_burst"`
}

type CaptureConfig struct {
	// Binary is the path to the hdhomerun_config CLI.
	Binary string `koanf:"binary"`
	// VideoPath and LogPath are templates containing {recordingID}.
	VideoPath string `koanf:"video_path"`
	LogPath   string `koanf:"log_path"`
	// MinFileBytes is the validity floor for a finished capture.
	MinFileBytes int64 `koanf:"min_file_bytes"`
}

type TranscodeConfig struct {
	// Preset command templates; {recordingID} is substituted at invocation.
	LowCommand    string        `koanf:"low_command"`
	MediumCommand string        `koanf:"medium_command"`
	HighCommand   string        `koanf:"high_command"`
	OutputPath    string        `koanf:"output_path"`
	LogPath       string        `koanf:"log_path"`
	Interval      time.Duration `koanf:"interval"`
}

type BifConfig struct {
	// ImageCommand extracts frames; {videoFile}, {framesPerSecond} and
	// {imageDir} are substituted at invocation.
	ImageCommand    string        `koanf:"image_command"`
	ImageDir        string        `koanf:"image_dir"`
	OutputPath      string        `koanf:"output_path"`
	FrameIntervalMS int           `koanf:"frame_interval_ms"`
	Interval        time.Duration `koanf:"interval"`
}

type SchedulerConfig struct {
	// PlanCron fires the planner; times are UTC.
	PlanCron     string        `koanf:"plan_cron"`
	PlanWindow   time.Duration `koanf:"plan_window"`
	MisfireGrace time.Duration `koanf:"misfire_grace"`
	ReapInterval time.Duration `koanf:"reap_interval"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConns: 8,
			MinConns: 2,
		},
		Server: ServerConfig{
			Addr:           ":8085",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Capture: CaptureConfig{
			MinFileBytes: 10_000_000,
		},
		Transcode: TranscodeConfig{
			Interval: 60 * time.Second,
		},
		Bif: BifConfig{
			FrameIntervalMS: 10_000,
			Interval:        60 * time.Second,
		},
		Scheduler: SchedulerConfig{
			PlanCron:     "40 0,6,12,18 * * *",
			PlanWindow:   12 * time.Hour,
			MisfireGrace: 60 * time.Second,
			ReapInterval: 60 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the effective configuration. An explicitly configured file
// that cannot be read is an error; absent default-path files are not.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path, explicit := configPath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	// AERIAL_CAPTURE_VIDEO_PATH → capture.video_path
	err := k.Load(env.Provider("AERIAL_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "AERIAL_"))
		return strings.Replace(key, "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath() (path string, explicit bool) {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p, true
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, false
		}
	}
	return "", false
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if c.Capture.Binary == "" {
		missing = append(missing, "capture.binary")
	}
	if c.Capture.VideoPath == "" {
		missing = append(missing, "capture.video_path")
	}
	if c.Capture.LogPath == "" {
		missing = append(missing, "capture.log_path")
	}
	if c.Transcode.LowCommand == "" || c.Transcode.MediumCommand == "" || c.Transcode.HighCommand == "" {
		missing = append(missing, "transcode presets")
	}
	if c.Transcode.OutputPath == "" {
		missing = append(missing, "transcode.output_path")
	}
	if c.Transcode.LogPath == "" {
		missing = append(missing, "transcode.log_path")
	}
	if c.Bif.ImageCommand == "" {
		missing = append(missing, "bif.image_command")
	}
	if c.Bif.ImageDir == "" {
		missing = append(missing, "bif.image_dir")
	}
	if c.Bif.OutputPath == "" {
		missing = append(missing, "bif.output_path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.Bif.FrameIntervalMS <= 0 {
		return fmt.Errorf("bif.frame_interval_ms must be positive")
	}
	if c.Scheduler.PlanWindow <= 0 {
		return fmt.Errorf("scheduler.plan_window must be positive")
	}
	return nil
}
