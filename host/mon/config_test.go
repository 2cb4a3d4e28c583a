package mon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mon.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "serial:\n  device: /dev/ttyACM1\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyACM1" {
		t.Errorf("device = %q, want /dev/ttyACM1", cfg.Serial.Device)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("baud default = %d, want 115200", cfg.Serial.Baud)
	}
	if cfg.Poll.CountersMS != 10000 {
		t.Errorf("counters poll default = %d, want 10000", cfg.Poll.CountersMS)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level default = %q, want info", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config failed validation: %v", err)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "serial:\n  devcie: /dev/ttyACM0\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for a misspelled field")
	}
}

func TestLoadConfigRejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n---\nlogging:\n  level: info\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for a second yaml document")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty device", func(c *Config) { c.Serial.Device = "" }, "serial.device"},
		{"negative baud", func(c *Config) { c.Serial.Baud = -1 }, "serial.baud"},
		{"zero read timeout", func(c *Config) { c.Serial.ReadTimeoutMS = 0 }, "read_timeout_ms"},
		{"negative poll", func(c *Config) { c.Poll.StatusMS = -1 }, "poll"},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestIntervalConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Serial.ReadTimeoutMS = 250
	cfg.Poll.StatusMS = 1500

	if got := cfg.ReadTimeout(); got != 250*time.Millisecond {
		t.Errorf("ReadTimeout() = %v, want 250ms", got)
	}
	if got := cfg.StatusInterval(); got != 1500*time.Millisecond {
		t.Errorf("StatusInterval() = %v, want 1.5s", got)
	}
	if got := cfg.CountersInterval(); got != 10*time.Second {
		t.Errorf("CountersInterval() = %v, want 10s", got)
	}
}
