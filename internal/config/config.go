package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Devices         []DeviceConfig    `yaml:"devices"`
	Poll            PollConfig        `yaml:"poll"`
	Queue           QueueConfig       `yaml:"queue"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Retention       Duration          `yaml:"retention"`        // journal retention (0 = keep forever)
	Script          string            `yaml:"script"`           // optional Lua automation script
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // graceful stop timeout
}

// DeviceConfig describes one air conditioner.
type DeviceConfig struct {
	Name     string   `yaml:"name"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`      // 0 = protocol default 7777
	Timeout  Duration `yaml:"timeout"`   // UDP round-trip timeout
	CacheTTL Duration `yaml:"cache_ttl"` // status cache for unforced reads
}

// PollConfig contains status polling settings.
type PollConfig struct {
	Interval Duration `yaml:"interval"`
}

// QueueConfig tunes the command queue.
type QueueConfig struct {
	MergeWindow  Duration `yaml:"merge_window"`  // merge adjacent intents (default 500ms)
	MinInterval  Duration `yaml:"min_interval"`  // floor between sends (default 1s)
	RetryBackoff Duration `yaml:"retry_backoff"` // wait between attempts (default 1s)
	MaxAttempts  int      `yaml:"max_attempts"`  // send attempts per command (default 3)
	ResyncDelay  Duration `yaml:"resync_delay"`  // delay before post-command re-read (default 2s)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// HealthcheckConfig contains health/status server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("no devices configured")
	}
	seen := make(map[string]bool)
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Name == "" {
			return nil, fmt.Errorf("device %d: name is required", i)
		}
		if d.Host == "" {
			return nil, fmt.Errorf("device %q: host is required", d.Name)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate device name %q", d.Name)
		}
		seen[d.Name] = true
		if d.Timeout == 0 {
			d.Timeout = Duration(5 * time.Second)
		}
	}

	// Defaults
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./tfiacd.sqlite"
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(30 * time.Second)
	}
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
