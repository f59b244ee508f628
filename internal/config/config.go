package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/blelink/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Central    CentralConfig    `yaml:"central"`
	Peripheral PeripheralConfig `yaml:"peripheral"`
	Framing    FramingConfig    `yaml:"framing"`
}

// CentralConfig holds scanning and connection settings.
type CentralConfig struct {
	ScanServices     []string      `yaml:"scan_services"` // empty scans for everything
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	ScanDuration     time.Duration `yaml:"scan_duration"`
}

// PeripheralConfig holds the advertised service settings.
type PeripheralConfig struct {
	LocalName          string        `yaml:"local_name"`
	ServiceUUID        string        `yaml:"service_uuid"`        // random when empty
	CharacteristicUUID string        `yaml:"characteristic_uuid"` // random when empty
	FrameLimit         int           `yaml:"frame_limit"`
	RetryInterval      time.Duration `yaml:"retry_interval"`
}

// FramingConfig holds the marker strings and text encoding.
type FramingConfig struct {
	StartMarker string `yaml:"start_marker"`
	EndMarker   string `yaml:"end_marker"`
	Encoding    string `yaml:"encoding"`
}

// Markers returns the framing markers.
func (f FramingConfig) Markers() protocol.Markers {
	return protocol.Markers{Start: f.StartMarker, End: f.EndMarker}
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blelink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Central: CentralConfig{
			ConnectTimeout:   10 * time.Second,
			DiscoveryTimeout: 10 * time.Second,
			ScanDuration:     10 * time.Second,
		},
		Peripheral: PeripheralConfig{
			LocalName:     "blelink",
			FrameLimit:    20,
			RetryInterval: 20 * time.Millisecond,
		},
		Framing: FramingConfig{
			StartMarker: protocol.DefaultStartMarker,
			EndMarker:   protocol.DefaultEndMarker,
			Encoding:    protocol.DefaultEncoding,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	// Zero disables the deadline.
	if c.Central.ConnectTimeout < 0 {
		return fmt.Errorf("central.connect_timeout must not be negative")
	}
	if c.Central.DiscoveryTimeout < 0 {
		return fmt.Errorf("central.discovery_timeout must not be negative")
	}
	if c.Central.ScanDuration < 0 {
		return fmt.Errorf("central.scan_duration must not be negative")
	}

	if c.Peripheral.FrameLimit <= 0 {
		return fmt.Errorf("peripheral.frame_limit must be > 0")
	}
	if c.Peripheral.RetryInterval <= 0 {
		return fmt.Errorf("peripheral.retry_interval must be > 0")
	}

	if err := c.Framing.Markers().Validate(); err != nil {
		return fmt.Errorf("framing: %w", err)
	}
	if _, err := protocol.LookupEncoding(c.Framing.Encoding); err != nil {
		return fmt.Errorf("framing.encoding: %w", err)
	}

	return nil
}

const defaultHeader = `# blelink configuration
#
# log_level: debug, info, warn or error.
# central.scan_services limits scanning to peripherals advertising one of
# the listed service UUIDs. Leave it empty to see everything.
# peripheral.service_uuid and characteristic_uuid are random per run when empty.
# framing.encoding takes any IANA charset name (utf-8, iso-8859-1, ...).

`

// WriteDefault writes the default config to DefaultConfigPath and returns
// the path. It does nothing and returns "" when the file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// map to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
