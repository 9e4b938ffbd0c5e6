package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autopause.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}

	if cfg.Monitor.CheckInterval != 1 {
		t.Errorf("Expected check_interval 1, got %d", cfg.Monitor.CheckInterval)
	}
	if cfg.Monitor.SilenceThreshold != -50.0 {
		t.Errorf("Expected silence_threshold -50, got %v", cfg.Monitor.SilenceThreshold)
	}
	if cfg.Monitor.StillnessThreshold != 0.01 {
		t.Errorf("Expected stillness_threshold 0.01, got %v", cfg.Monitor.StillnessThreshold)
	}
	if cfg.OBS.URL != "ws://localhost:4455" {
		t.Errorf("Expected default OBS URL, got %s", cfg.OBS.URL)
	}
	if cfg.OBS.Timeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", cfg.OBS.Timeout)
	}
	if cfg.Monitor.AudioMode != "volume" {
		t.Errorf("Expected audio_mode volume, got %s", cfg.Monitor.AudioMode)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
obs:
  url: ws://studio.local:4455
  password: secret
  timeout: 2s
monitor:
  check_interval: 5
  silence_threshold: -40.5
  stillness_threshold: 0.05
  video_source: Camera
  audio_source: Mic/Aux
  audio_mode: meter
log:
  file: ~/logs/autopause.log
status:
  listen: localhost:9090
`)

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OBS.URL != "ws://studio.local:4455" || cfg.OBS.Password != "secret" {
		t.Errorf("OBS section not loaded: %+v", cfg.OBS)
	}
	if cfg.OBS.Timeout != 2*time.Second {
		t.Errorf("Expected 2s timeout, got %v", cfg.OBS.Timeout)
	}

	s := cfg.Settings()
	if s.CheckInterval != 5 || s.SilenceThreshold != -40.5 || s.StillnessThreshold != 0.05 {
		t.Errorf("Thresholds not loaded: %+v", s)
	}
	if s.VideoSource != "Camera" || s.AudioSource != "Mic/Aux" {
		t.Errorf("Sources not loaded: %+v", s)
	}
	if cfg.Monitor.ScreenshotWidth != 320 {
		t.Errorf("Expected default screenshot_width 320, got %d", cfg.Monitor.ScreenshotWidth)
	}

	home, _ := os.UserHomeDir()
	if cfg.Log.File != filepath.Join(home, "logs", "autopause.log") {
		t.Errorf("Expected tilde expansion, got %s", cfg.Log.File)
	}
	if cfg.Status.Listen != "localhost:9090" {
		t.Errorf("Expected status listen address, got %s", cfg.Status.Listen)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "monitor:\n  check_interval: 5\n")
	t.Setenv("AUTOPAUSE_MONITOR_CHECK_INTERVAL", "7")
	t.Setenv("AUTOPAUSE_OBS_PASSWORD", "from-env")

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Monitor.CheckInterval != 7 {
		t.Errorf("Expected env override 7, got %d", cfg.Monitor.CheckInterval)
	}
	if cfg.OBS.Password != "from-env" {
		t.Errorf("Expected password from env, got %q", cfg.OBS.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "monitor: [unclosed\n")

	if _, err := NewLoader(path).Load(); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"interval too small", func(c *Config) { c.Monitor.CheckInterval = 0 }, "monitor.check_interval must be >= 1"},
		{"interval too large", func(c *Config) { c.Monitor.CheckInterval = 61 }, "monitor.check_interval must be <= 60"},
		{"interval upper bound", func(c *Config) { c.Monitor.CheckInterval = 60 }, ""},
		{"silence above zero", func(c *Config) { c.Monitor.SilenceThreshold = 3 }, "monitor.silence_threshold must be <= 0"},
		{"silence below floor", func(c *Config) { c.Monitor.SilenceThreshold = -120 }, "monitor.silence_threshold must be >= -100"},
		{"silence at floor", func(c *Config) { c.Monitor.SilenceThreshold = -100 }, ""},
		{"stillness negative", func(c *Config) { c.Monitor.StillnessThreshold = -0.1 }, "monitor.stillness_threshold must be >= 0"},
		{"stillness above one", func(c *Config) { c.Monitor.StillnessThreshold = 1.5 }, "monitor.stillness_threshold must be <= 1"},
		{"missing video source", func(c *Config) { c.Monitor.VideoSource = "" }, "monitor.video_source is required"},
		{"bad audio mode", func(c *Config) { c.Monitor.AudioMode = "rms" }, "monitor.audio_mode must be one of"},
		{"missing url", func(c *Config) { c.OBS.URL = "" }, "obs.url is required"},
		{"zero timeout", func(c *Config) { c.OBS.Timeout = 0 }, "obs.timeout must be > 0"},
		{"bad listen", func(c *Config) { c.Status.Listen = "nowhere" }, "status.listen is invalid"},
		{"listen any host", func(c *Config) { c.Status.Listen = ":8080" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_RejectsOutOfRangeFile(t *testing.T) {
	path := writeConfig(t, "monitor:\n  stillness_threshold: 2.0\n")

	_, err := NewLoader(path).Load()
	if err == nil || !strings.Contains(err.Error(), "stillness_threshold") {
		t.Errorf("Expected stillness_threshold validation error, got: %v", err)
	}
}

func TestDefaultIsCopy(t *testing.T) {
	a := Default()
	a.Monitor.CheckInterval = 42
	if Default().Monitor.CheckInterval != 1 {
		t.Error("Default() must not share state between calls")
	}
}

func TestWatch_AppliesValidEdits(t *testing.T) {
	path := writeConfig(t, "monitor:\n  check_interval: 2\n")
	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changes := make(chan *Config, 4)
	loader.Watch(func(c *Config) { changes <- c }, nil)

	// Give the watcher a moment to register before editing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("monitor:\n  check_interval: 9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Monitor.CheckInterval == 9 {
				return
			}
		case <-timeout:
			t.Fatal("Expected reloaded config with check_interval 9")
		}
	}
}
