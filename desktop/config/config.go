package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHealthURL          = "http://127.0.0.1:8789/health"
	DefaultUIURL              = "http://127.0.0.1:8789/ui"
	DefaultSidecarName        = "ndm_backend"
	DefaultToggleKey          = "f11"
	DefaultHealthTimeout      = 15 * time.Second
	DefaultPollInterval       = 150 * time.Millisecond
	DefaultRequestTimeout     = 1 * time.Second
	DefaultGracefulStopPeriod = 2 * time.Second
	DefaultLogLevel           = "info"
)

var ErrInvalidConfig = errors.New("invalid config")

// SidecarConfig describes how the backend executable is located and launched.
type SidecarConfig struct {
	Name        string            `yaml:"name"`         // Base name of the bundled binary.
	Path        string            `yaml:"path"`         // Explicit path; bypasses lookup when set.
	Dir         string            `yaml:"dir"`          // Lookup directory; defaults to the shell's own directory.
	WorkDir     string            `yaml:"work_dir"`     // Working directory for the child.
	Args        []string          `yaml:"args"`         // Extra command line arguments.
	Env         map[string]string `yaml:"env"`          // Extra environment variables.
	GracePeriod time.Duration     `yaml:"grace_period"` // Time between interrupt and kill.
}

// HealthConfig tunes the readiness gate.
type HealthConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Config is the full shell configuration.
type Config struct {
	HealthURL   string        `yaml:"health_url"`
	UIURL       string        `yaml:"ui_url"`
	SkipSidecar bool          `yaml:"skip_sidecar"`
	Sidecar     SidecarConfig `yaml:"sidecar"`
	Health      HealthConfig  `yaml:"health"`
	DataDir     string        `yaml:"data_dir"`
	LogLevel    string        `yaml:"log_level"`
	ToggleKey   string        `yaml:"toggle_key"`
	OpenBrowser bool          `yaml:"open_browser"`
	Headless    bool          `yaml:"headless"`
}

// Default returns a Config with every field populated.
func Default() *Config {
	cfg := &Config{OpenBrowser: true}
	cfg.Health.Timeout = DefaultHealthTimeout
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML config file. A missing file is not an error and yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// Keys absent from the file keep their defaults; health.timeout may be set to 0 explicitly.
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills empty fields. Health.Timeout is left alone: zero is a valid setting
// meaning the backend is never waited for.
func applyDefaults(cfg *Config) {
	if cfg.HealthURL == "" {
		cfg.HealthURL = DefaultHealthURL
	}
	if cfg.UIURL == "" {
		cfg.UIURL = DefaultUIURL
	}
	if cfg.Sidecar.Name == "" {
		cfg.Sidecar.Name = DefaultSidecarName
	}
	if cfg.Sidecar.GracePeriod == 0 {
		cfg.Sidecar.GracePeriod = DefaultGracefulStopPeriod
	}
	if cfg.Health.PollInterval == 0 {
		cfg.Health.PollInterval = DefaultPollInterval
	}
	if cfg.Health.RequestTimeout == 0 {
		cfg.Health.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir(os.LookupEnv)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.ToggleKey == "" {
		cfg.ToggleKey = DefaultToggleKey
	}
}

// defaultDataDir follows the shell's historical convention of %APPDATA%, falling back to
// the platform config directory and finally the working directory.
func defaultDataDir(lookup func(string) (string, bool)) string {
	if dir, ok := lookup("APPDATA"); ok && dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

// ApplyEnv overlays environment variables onto cfg. lookup is usually os.LookupEnv.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("NDM_SKIP_SIDECAR"); ok {
		cfg.SkipSidecar = truthy(v)
	}
	if v, ok := lookup("NDM_DATA_DIR"); ok && v != "" {
		cfg.DataDir = v
	}
	if v, ok := lookup("NDM_HEALTH_URL"); ok && v != "" {
		cfg.HealthURL = v
	}
	if v, ok := lookup("NDM_UI_URL"); ok && v != "" {
		cfg.UIURL = v
	}
	if v, ok := lookup("NDM_SIDECAR_PATH"); ok && v != "" {
		cfg.Sidecar.Path = v
	}
	if v, ok := lookup("NDM_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Validate checks URLs and durations.
func (cfg *Config) Validate() error {
	for name, raw := range map[string]string{"health_url": cfg.HealthURL, "ui_url": cfg.UIURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: %s must be an http(s) URL, got %q", ErrInvalidConfig, name, raw)
		}
		if u.Host == "" {
			return fmt.Errorf("%w: %s has no host", ErrInvalidConfig, name)
		}
	}
	if cfg.Health.Timeout < 0 || cfg.Health.PollInterval < 0 || cfg.Health.RequestTimeout < 0 {
		return fmt.Errorf("%w: health durations must not be negative", ErrInvalidConfig)
	}
	if cfg.Sidecar.GracePeriod < 0 {
		return fmt.Errorf("%w: sidecar grace_period must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LogPath is where the shell's diagnostic trail lives.
func (cfg *Config) LogPath() string {
	return filepath.Join(cfg.DataDir, "NDM", "ndm_desktop.log")
}

// JournalPath is the SQLite database recording session lifecycle events.
func (cfg *Config) JournalPath() string {
	return filepath.Join(cfg.DataDir, "NDM", "sessions.db")
}
