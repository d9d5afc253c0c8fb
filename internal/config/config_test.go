package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
devices:
  - name: living-room
    host: 192.168.1.50
    timeout: 3s
    cache_ttl: 10s
  - name: bedroom
    host: 192.168.1.51
    port: 7778
poll:
  interval: 15s
queue:
  merge_window: 250ms
  max_attempts: 5
database:
  path: /tmp/test.sqlite
log:
  level: debug
  json: true
healthcheck:
  enabled: true
  host: 127.0.0.1
  port: 8080
retention: 168h
shutdown_timeout: 10s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(cfg.Devices))
	}
	d := cfg.Devices[0]
	if d.Name != "living-room" || d.Host != "192.168.1.50" {
		t.Errorf("device[0] = %+v", d)
	}
	if d.Timeout.Duration() != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", d.Timeout.Duration())
	}
	if d.CacheTTL.Duration() != 10*time.Second {
		t.Errorf("cache_ttl = %v, want 10s", d.CacheTTL.Duration())
	}
	if cfg.Devices[1].Port != 7778 {
		t.Errorf("device[1].port = %d, want 7778", cfg.Devices[1].Port)
	}

	if cfg.Poll.Interval.Duration() != 15*time.Second {
		t.Errorf("poll interval = %v, want 15s", cfg.Poll.Interval.Duration())
	}
	if cfg.Queue.MergeWindow.Duration() != 250*time.Millisecond {
		t.Errorf("merge_window = %v, want 250ms", cfg.Queue.MergeWindow.Duration())
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d, want 5", cfg.Queue.MaxAttempts)
	}
	if cfg.Database.Path != "/tmp/test.sqlite" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("log = %+v", cfg.Log)
	}
	if !cfg.Healthcheck.Enabled || cfg.Healthcheck.Port != 8080 {
		t.Errorf("healthcheck = %+v", cfg.Healthcheck)
	}
	if cfg.Retention.Duration() != 168*time.Hour {
		t.Errorf("retention = %v, want 168h", cfg.Retention.Duration())
	}
	if cfg.ShutdownTimeout.Duration() != 10*time.Second {
		t.Errorf("shutdown_timeout = %v, want 10s", cfg.ShutdownTimeout.Duration())
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
devices:
  - name: ac
    host: 10.0.0.2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Devices[0].Timeout.Duration() != 5*time.Second {
		t.Errorf("device timeout = %v, want 5s default", cfg.Devices[0].Timeout.Duration())
	}
	if cfg.Poll.Interval.Duration() != 30*time.Second {
		t.Errorf("poll interval = %v, want 30s default", cfg.Poll.Interval.Duration())
	}
	if cfg.Database.Path != "./tfiacd.sqlite" {
		t.Errorf("database path = %q, want default", cfg.Database.Path)
	}
	if cfg.Healthcheck.Host != "0.0.0.0" || cfg.Healthcheck.Port != 9090 {
		t.Errorf("healthcheck = %+v, want 0.0.0.0:9090", cfg.Healthcheck)
	}
	if cfg.ShutdownTimeout.Duration() != 5*time.Second {
		t.Errorf("shutdown_timeout = %v, want 5s default", cfg.ShutdownTimeout.Duration())
	}
	if cfg.Log.GetLevel() != "info" {
		t.Errorf("log level = %q, want info default", cfg.Log.GetLevel())
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no_devices", `poll: {interval: 30s}`},
		{"missing_name", "devices:\n  - host: 10.0.0.2\n"},
		{"missing_host", "devices:\n  - name: ac\n"},
		{"duplicate_names", "devices:\n  - name: ac\n    host: 10.0.0.2\n  - name: ac\n    host: 10.0.0.3\n"},
		{"bad_duration", "devices:\n  - name: ac\n    host: 10.0.0.2\n    timeout: sometimes\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("TFIACD_TEST_HOST", "192.168.7.7")
	path := writeConfig(t, `
devices:
  - name: ac
    host: ${TFIACD_TEST_HOST}
database:
  path: ${TFIACD_TEST_DB:/var/lib/tfiacd.sqlite}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Devices[0].Host != "192.168.7.7" {
		t.Errorf("host = %q, want expanded env value", cfg.Devices[0].Host)
	}
	if cfg.Database.Path != "/var/lib/tfiacd.sqlite" {
		t.Errorf("database path = %q, want fallback default", cfg.Database.Path)
	}
}
