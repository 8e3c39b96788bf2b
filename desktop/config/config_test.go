package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.HealthURL != DefaultHealthURL {
		t.Errorf("HealthURL = %q, want %q", cfg.HealthURL, DefaultHealthURL)
	}
	if cfg.UIURL != DefaultUIURL {
		t.Errorf("UIURL = %q, want %q", cfg.UIURL, DefaultUIURL)
	}
	if cfg.Health.Timeout != 15*time.Second {
		t.Errorf("Health.Timeout = %v, want 15s", cfg.Health.Timeout)
	}
	if cfg.Health.PollInterval != 150*time.Millisecond {
		t.Errorf("Health.PollInterval = %v, want 150ms", cfg.Health.PollInterval)
	}
	if cfg.Sidecar.Name != "ndm_backend" {
		t.Errorf("Sidecar.Name = %q, want ndm_backend", cfg.Sidecar.Name)
	}
	if cfg.SkipSidecar {
		t.Error("SkipSidecar should default to false")
	}
	if !cfg.OpenBrowser {
		t.Error("OpenBrowser should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HealthURL != DefaultHealthURL {
		t.Errorf("HealthURL = %q, want default", cfg.HealthURL)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ndm.yaml")
	data := `
health_url: http://127.0.0.1:9000/health
skip_sidecar: true
open_browser: false
sidecar:
  path: /opt/ndm/backend
  args: ["--port", "9000"]
  env:
    NDM_LOG_LEVEL: debug
health:
  timeout: 2s
  poll_interval: 50ms
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HealthURL != "http://127.0.0.1:9000/health" {
		t.Errorf("HealthURL = %q", cfg.HealthURL)
	}
	if cfg.UIURL != DefaultUIURL {
		t.Errorf("UIURL should fall back to default, got %q", cfg.UIURL)
	}
	if !cfg.SkipSidecar {
		t.Error("SkipSidecar should be true")
	}
	if cfg.OpenBrowser {
		t.Error("OpenBrowser should be false")
	}
	if cfg.Sidecar.Path != "/opt/ndm/backend" {
		t.Errorf("Sidecar.Path = %q", cfg.Sidecar.Path)
	}
	if len(cfg.Sidecar.Args) != 2 || cfg.Sidecar.Args[1] != "9000" {
		t.Errorf("Sidecar.Args = %v", cfg.Sidecar.Args)
	}
	if cfg.Sidecar.Env["NDM_LOG_LEVEL"] != "debug" {
		t.Errorf("Sidecar.Env = %v", cfg.Sidecar.Env)
	}
	if cfg.Health.Timeout != 2*time.Second {
		t.Errorf("Health.Timeout = %v, want 2s", cfg.Health.Timeout)
	}
	if cfg.Health.PollInterval != 50*time.Millisecond {
		t.Errorf("Health.PollInterval = %v, want 50ms", cfg.Health.PollInterval)
	}
	if cfg.Health.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("Health.RequestTimeout = %v, want default", cfg.Health.RequestTimeout)
	}
}

func TestLoadKeepsExplicitZeroTimeout(t *testing.T) {
	dir := t.TempDir()
	zero := filepath.Join(dir, "zero.yaml")
	if err := os.WriteFile(zero, []byte("health:\n  timeout: 0s\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(zero)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Health.Timeout != 0 {
		t.Errorf("Health.Timeout = %v, want explicit 0", cfg.Health.Timeout)
	}
	if cfg.Health.PollInterval != DefaultPollInterval {
		t.Errorf("Health.PollInterval = %v, want default", cfg.Health.PollInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero timeout should validate: %v", err)
	}

	unset := filepath.Join(dir, "unset.yaml")
	if err := os.WriteFile(unset, []byte("health:\n  poll_interval: 50ms\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = Load(unset)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Health.Timeout != DefaultHealthTimeout {
		t.Errorf("Health.Timeout = %v, want default when unset", cfg.Health.Timeout)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("health: [unterminated"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantSkip bool
	}{
		{"unset", map[string]string{}, false},
		{"one", map[string]string{"NDM_SKIP_SIDECAR": "1"}, true},
		{"true", map[string]string{"NDM_SKIP_SIDECAR": "TRUE"}, true},
		{"zero", map[string]string{"NDM_SKIP_SIDECAR": "0"}, false},
		{"garbage", map[string]string{"NDM_SKIP_SIDECAR": "maybe"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ApplyEnv(envMap(tt.env))
			if cfg.SkipSidecar != tt.wantSkip {
				t.Errorf("SkipSidecar = %v, want %v", cfg.SkipSidecar, tt.wantSkip)
			}
		})
	}
}

func TestApplyEnvOverridesPaths(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"NDM_DATA_DIR":     "/tmp/ndm",
		"NDM_HEALTH_URL":   "http://127.0.0.1:1/health",
		"NDM_UI_URL":       "http://127.0.0.1:1/ui",
		"NDM_SIDECAR_PATH": "/bin/backend",
		"NDM_LOG_LEVEL":    "debug",
	}))

	if cfg.DataDir != "/tmp/ndm" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.LogPath() != filepath.Join("/tmp/ndm", "NDM", "ndm_desktop.log") {
		t.Errorf("LogPath = %q", cfg.LogPath())
	}
	if cfg.JournalPath() != filepath.Join("/tmp/ndm", "NDM", "sessions.db") {
		t.Errorf("JournalPath = %q", cfg.JournalPath())
	}
	if cfg.HealthURL != "http://127.0.0.1:1/health" || cfg.UIURL != "http://127.0.0.1:1/ui" {
		t.Errorf("URLs not overridden: %q %q", cfg.HealthURL, cfg.UIURL)
	}
	if cfg.Sidecar.Path != "/bin/backend" {
		t.Errorf("Sidecar.Path = %q", cfg.Sidecar.Path)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestDefaultDataDirPrefersAPPDATA(t *testing.T) {
	dir := defaultDataDir(envMap(map[string]string{"APPDATA": `C:\Users\me\AppData\Roaming`}))
	if dir != `C:\Users\me\AppData\Roaming` {
		t.Errorf("defaultDataDir = %q", dir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.HealthURL = "ftp://127.0.0.1/health" }},
		{"no host", func(c *Config) { c.UIURL = "http:///ui" }},
		{"negative timeout", func(c *Config) { c.Health.Timeout = -time.Second }},
		{"negative grace", func(c *Config) { c.Sidecar.GracePeriod = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
