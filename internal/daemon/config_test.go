package daemon

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("CASCADE_HOME", "/tmp/cascade-test-home")
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 7420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 7420)
	}
	if cfg.Storage.Dir != "/tmp/cascade-test-home" {
		t.Errorf("Storage.Dir = %q, want CASCADE_HOME", cfg.Storage.Dir)
	}
	if cfg.Engine.VisitCapFactor != 10 {
		t.Errorf("Engine.VisitCapFactor = %d, want 10", cfg.Engine.VisitCapFactor)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error: %v", err)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CASCADE_HOME", t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 7420 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
}

func TestSaveLoadConfig_RoundTrip(t *testing.T) {
	t.Setenv("CASCADE_HOME", t.TempDir())
	cfg := DefaultConfig()
	cfg.API.Port = 9000
	cfg.Engine.VisitCapFactor = 25
	cfg.Logging.Format = "json"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.API.Port != 9000 || got.Engine.VisitCapFactor != 25 || got.Logging.Format != "json" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestLoadConfigFile_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	src := "[engine]\nvisit_cap_factor = 3\n\n[logging]\nlevel = \"debug\"\n"
	if err := os.WriteFile(path, []byte(src), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Engine.VisitCapFactor != 3 || cfg.Logging.Level != "debug" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want default kept", cfg.API.Host)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "[api\nport = 1"},
		{"port", "[api]\nport = 70000\n"},
		{"level", "[logging]\nlevel = \"loud\"\n"},
		{"format", "[logging]\nformat = \"xml\"\n"},
		{"cap", "[engine]\nvisit_cap_factor = -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.src), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfigFile(path); err == nil {
				t.Error("LoadConfigFile() should fail")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"15s", 15 * time.Second},
		{"2m", 2 * time.Minute},
		{"", time.Minute},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Minute); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger() error: %v", err)
	}
	if closer != nil {
		t.Error("no file configured, closer should be nil")
	}
	logger.Info("hidden")
	logger.Warn("shown", "scope", "p1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"scope":"p1"`) {
		t.Errorf("json output = %q", out)
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.log")
	logger, closer, err := newLogger(LoggingConfig{File: path}, nil)
	if err != nil {
		t.Fatalf("newLogger() error: %v", err)
	}
	logger.Info("to file", "scope", "p1")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}
