package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
database:
  url: postgres://aerial@localhost/aerial
capture:
  binary: /usr/bin/hdhomerun_config
  video_path: /srv/aerial/raw/{recordingID}.ts
  log_path: /srv/aerial/raw/{recordingID}.log
transcode:
  low_command: ffmpeg -i in low {recordingID}
  medium_command: ffmpeg -i in medium {recordingID}
  high_command: ffmpeg -i in high {recordingID}
  output_path: /srv/aerial/video/{recordingID}.mp4
  log_path: /srv/aerial/video/{recordingID}.log
bif:
  image_command: ffmpeg -i {videoFile} -r {framesPerSecond} {imageDir}/%08d.jpg
  image_dir: /srv/aerial/bifwork
  output_path: /srv/aerial/bif/{recordingID}.bif
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, writeConfig(t, minimalYAML))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.URL != "postgres://aerial@localhost/aerial" {
		t.Errorf("database.url = %q", cfg.Database.URL)
	}
	if cfg.Database.MaxConns != 8 || cfg.Database.MinConns != 2 {
		t.Errorf("pool bounds = %d/%d, want 8/2", cfg.Database.MaxConns, cfg.Database.MinConns)
	}
	if cfg.Scheduler.PlanWindow != 12*time.Hour {
		t.Errorf("plan_window = %v, want 12h", cfg.Scheduler.PlanWindow)
	}
	if cfg.Scheduler.PlanCron != "40 0,6,12,18 * * *" {
		t.Errorf("plan_cron = %q", cfg.Scheduler.PlanCron)
	}
	if cfg.Capture.MinFileBytes != 10_000_000 {
		t.Errorf("min_file_bytes = %d, want 10000000", cfg.Capture.MinFileBytes)
	}
	if cfg.Bif.FrameIntervalMS != 10_000 {
		t.Errorf("frame_interval_ms = %d, want 10000", cfg.Bif.FrameIntervalMS)
	}
	if cfg.Transcode.Interval != 60*time.Second {
		t.Errorf("transcode.interval = %v, want 60s", cfg.Transcode.Interval)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	yaml := minimalYAML + `
scheduler:
  plan_window: 6h
  reap_interval: 30m
server:
  addr: ":9000"
`
	t.Setenv(ConfigPathEnvVar, writeConfig(t, yaml))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.PlanWindow != 6*time.Hour {
		t.Errorf("plan_window = %v, want 6h", cfg.Scheduler.PlanWindow)
	}
	if cfg.Scheduler.ReapInterval != 30*time.Minute {
		t.Errorf("reap_interval = %v, want 30m", cfg.Scheduler.ReapInterval)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("server.addr = %q, want :9000", cfg.Server.Addr)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, writeConfig(t, minimalYAML))
	t.Setenv("AERIAL_DATABASE_URL", "postgres://env@db/aerial")
	t.Setenv("AERIAL_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://env@db/aerial" {
		t.Errorf("database.url = %q, want env override", cfg.Database.URL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, writeConfig(t, "database:\n  url: postgres://x\n"))

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without capture/transcode/bif config")
	}
	if !strings.Contains(err.Error(), "capture.binary") {
		t.Errorf("error %q does not name capture.binary", err)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded with missing explicit config file")
	}
}
