package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foreman.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	def := DefaultConfig()
	if cfg.PollInterval != def.PollInterval {
		t.Errorf("Expected default poll interval %v, got %v", def.PollInterval, cfg.PollInterval)
	}
	if cfg.AgentBin != "claude" {
		t.Errorf("Expected default agent binary, got %q", cfg.AgentBin)
	}
	if !cfg.Monitor.Enabled {
		t.Error("Monitor should be enabled by default")
	}
}

func TestLoadConfigAppliesValues(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/foreman/foreman.db
poll_interval: 2s
poll_timeout: 10m
max_parallel: 8
run_timeout: 45m
session_idle_timeout: 1h
agent_bin: /usr/local/bin/claude
require_approval: true
log_level: debug
gates:
  enabled: true
  commands:
    - name: vet
      command: go
      args: ["vet", "./..."]
monitor:
  enabled: false
  interval: 10s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DBPath != "/var/lib/foreman/foreman.db" {
		t.Errorf("Unexpected db path %q", cfg.DBPath)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("Expected poll interval 2s, got %v", cfg.PollInterval)
	}
	if cfg.PollTimeout != 10*time.Minute {
		t.Errorf("Expected poll timeout 10m, got %v", cfg.PollTimeout)
	}
	if cfg.MaxParallel != 8 {
		t.Errorf("Expected max parallel 8, got %d", cfg.MaxParallel)
	}
	if cfg.RunTimeout != 45*time.Minute {
		t.Errorf("Expected run timeout 45m, got %v", cfg.RunTimeout)
	}
	if cfg.SessionIdleTimeout != time.Hour {
		t.Errorf("Expected session idle timeout 1h, got %v", cfg.SessionIdleTimeout)
	}
	if !cfg.RequireApproval {
		t.Error("Expected require_approval true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.LogLevel)
	}
	if !cfg.Gates.Enabled || len(cfg.Gates.Commands) != 1 || cfg.Gates.Commands[0].Name != "vet" {
		t.Errorf("Unexpected gates config %+v", cfg.Gates)
	}
	if cfg.Monitor.Enabled {
		t.Error("Monitor should be disabled by explicit enabled: false")
	}
	if cfg.Monitor.Interval != 10*time.Second {
		t.Errorf("Expected monitor interval 10s, got %v", cfg.Monitor.Interval)
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "max_parallel: 2\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MaxParallel != 2 {
		t.Errorf("Expected max parallel 2, got %d", cfg.MaxParallel)
	}
	def := DefaultConfig()
	if cfg.PollTimeout != def.PollTimeout {
		t.Errorf("Expected default poll timeout, got %v", cfg.PollTimeout)
	}
	if !cfg.Monitor.Enabled {
		t.Error("Monitor should stay enabled when the block is absent")
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := writeConfig(t, "poll_interval: [not a duration\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	path := writeConfig(t, "poll_interval: soon\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for invalid duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"zero poll timeout", func(c *Config) { c.PollTimeout = 0 }, true},
		{"timeout below interval", func(c *Config) { c.PollTimeout = c.PollInterval / 2 }, true},
		{"negative max parallel", func(c *Config) { c.MaxParallel = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
