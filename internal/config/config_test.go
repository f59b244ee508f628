package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Central.ConnectTimeout != 10*time.Second {
		t.Errorf("Central.ConnectTimeout = %v, want 10s", cfg.Central.ConnectTimeout)
	}
	if len(cfg.Central.ScanServices) != 0 {
		t.Errorf("Central.ScanServices = %v, want empty", cfg.Central.ScanServices)
	}
	if cfg.Peripheral.FrameLimit != 20 {
		t.Errorf("Peripheral.FrameLimit = %d, want 20", cfg.Peripheral.FrameLimit)
	}
	if cfg.Peripheral.ServiceUUID != "" {
		t.Errorf("Peripheral.ServiceUUID = %q, want empty", cfg.Peripheral.ServiceUUID)
	}
	if cfg.Framing.StartMarker != "BOM" || cfg.Framing.EndMarker != "EOM" {
		t.Errorf("Framing markers = %q/%q, want BOM/EOM", cfg.Framing.StartMarker, cfg.Framing.EndMarker)
	}
	if cfg.Framing.Encoding != "utf-8" {
		t.Errorf("Framing.Encoding = %q, want utf-8", cfg.Framing.Encoding)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
log_level: debug
central:
  scan_services: ["180F", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"]
  connect_timeout: 5s
  discovery_timeout: 1m
peripheral:
  local_name: bench-pad
  service_uuid: 6E400001-B5A3-F393-E0A9-E50E24DCCA9E
  frame_limit: 182
framing:
  start_marker: "<<"
  end_marker: ">>"
  encoding: iso-8859-1
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if len(cfg.Central.ScanServices) != 2 || cfg.Central.ScanServices[0] != "180F" {
		t.Errorf("Central.ScanServices = %v", cfg.Central.ScanServices)
	}
	if cfg.Central.ConnectTimeout != 5*time.Second {
		t.Errorf("Central.ConnectTimeout = %v, want 5s", cfg.Central.ConnectTimeout)
	}
	if cfg.Central.DiscoveryTimeout != time.Minute {
		t.Errorf("Central.DiscoveryTimeout = %v, want 1m", cfg.Central.DiscoveryTimeout)
	}
	if cfg.Peripheral.LocalName != "bench-pad" {
		t.Errorf("Peripheral.LocalName = %q", cfg.Peripheral.LocalName)
	}
	if cfg.Peripheral.FrameLimit != 182 {
		t.Errorf("Peripheral.FrameLimit = %d, want 182", cfg.Peripheral.FrameLimit)
	}
	if cfg.Framing.Markers().Start != "<<" || cfg.Framing.Markers().End != ">>" {
		t.Errorf("Framing.Markers() = %+v", cfg.Framing.Markers())
	}
	if cfg.Framing.Encoding != "iso-8859-1" {
		t.Errorf("Framing.Encoding = %q", cfg.Framing.Encoding)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("peripheral:\n  frame_limit: 64\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Peripheral.FrameLimit != 64 {
		t.Errorf("Peripheral.FrameLimit = %d, want 64", cfg.Peripheral.FrameLimit)
	}
	if cfg.Peripheral.LocalName != "blelink" {
		t.Errorf("Peripheral.LocalName = %q, want default", cfg.Peripheral.LocalName)
	}
	if cfg.Framing.StartMarker != "BOM" {
		t.Errorf("Framing.StartMarker = %q, want default", cfg.Framing.StartMarker)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := os.WriteFile(filepath.Join(home, "blelink.yaml"), []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load("~/blelink.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should return error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("central: [not, a, map"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"zero connect timeout disables deadline", func(c *Config) { c.Central.ConnectTimeout = 0 }, false},
		{"zero discovery timeout disables deadline", func(c *Config) { c.Central.DiscoveryTimeout = 0 }, false},
		{"negative connect timeout", func(c *Config) { c.Central.ConnectTimeout = -time.Second }, true},
		{"negative discovery timeout", func(c *Config) { c.Central.DiscoveryTimeout = -time.Second }, true},
		{"zero scan duration", func(c *Config) { c.Central.ScanDuration = 0 }, false},
		{"negative scan duration", func(c *Config) { c.Central.ScanDuration = -time.Second }, true},
		{"zero frame limit", func(c *Config) { c.Peripheral.FrameLimit = 0 }, true},
		{"zero retry interval", func(c *Config) { c.Peripheral.RetryInterval = 0 }, true},
		{"empty start marker", func(c *Config) { c.Framing.StartMarker = "" }, true},
		{"identical markers", func(c *Config) { c.Framing.EndMarker = c.Framing.StartMarker }, true},
		{"unknown encoding", func(c *Config) { c.Framing.Encoding = "klingon-8" }, true},
		{"latin1 encoding", func(c *Config) { c.Framing.Encoding = "ISO-8859-1" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	want := filepath.Join(home, ".config", "blelink", "config.yaml")
	if path != want {
		t.Errorf("WriteDefault() path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# blelink") {
		t.Errorf("written config should start with a comment header, got %q", string(data)[:20])
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(written) error = %v", err)
	}
	if cfg.Central.ConnectTimeout != Default().Central.ConnectTimeout {
		t.Errorf("round-tripped ConnectTimeout = %v", cfg.Central.ConnectTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "blelink")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	existing := "log_level: error\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty when file exists", path)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if string(data) != existing {
		t.Errorf("existing config was overwritten: %q", string(data))
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
