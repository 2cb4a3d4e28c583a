// Package mon watches a controller over its serial console: it fetches
// the identity dictionary, streams the reports the firmware pushes and
// optionally polls status and counters on a schedule.
package mon

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration for the monitor. The file is the
// primary surface; flags override individual fields for ad-hoc runs.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Poll    PollConfig    `yaml:"poll"`
	Logging LoggingConfig `yaml:"logging"`
}

type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
}

// PollConfig schedules the periodic queries. A zero interval disables
// that query; the firmware pushes status on its own either way.
type PollConfig struct {
	StatusMS   int `yaml:"status_ms"`
	CountersMS int `yaml:"counters_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully populated configuration.
func DefaultConfig() Config {
	return Config{
		Serial: SerialConfig{
			Device:        "/dev/ttyACM0",
			Baud:          115200,
			ReadTimeoutMS: 100,
		},
		Poll: PollConfig{
			StatusMS:   0,
			CountersMS: 10000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads a YAML file over the defaults. Unknown fields are
// rejected to catch typos, and trailing documents are an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// Validate checks the invariants after defaults, file and overrides
// have all been applied.
func (c *Config) Validate() error {
	if c.Serial.Device == "" {
		return errors.New("serial.device must not be empty")
	}
	if c.Serial.Baud < 0 {
		return errors.New("serial.baud must be >= 0")
	}
	if c.Serial.ReadTimeoutMS <= 0 {
		return errors.New("serial.read_timeout_ms must be > 0")
	}
	if c.Poll.StatusMS < 0 || c.Poll.CountersMS < 0 {
		return errors.New("poll intervals must be >= 0")
	}
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	return nil
}

// ReadTimeout converts the serial read timeout to a duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMS) * time.Millisecond
}

// StatusInterval is the status polling period, zero when disabled.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Poll.StatusMS) * time.Millisecond
}

// CountersInterval is the counters polling period, zero when disabled.
func (c *Config) CountersInterval() time.Duration {
	return time.Duration(c.Poll.CountersMS) * time.Millisecond
}
