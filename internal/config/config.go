// Package config loads foreman configuration from a YAML file, falling back
// to defaults when the file is absent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// GatesConfig configures the quality gates run after each agent run.
type GatesConfig struct {
	// Enabled turns quality gates on.
	Enabled bool `yaml:"enabled"`

	// Commands are run in order inside the repository; the first failure
	// marks the run qa_gate_failed.
	Commands []GateCommandConfig `yaml:"commands"`
}

// GateCommandConfig is one named gate command.
type GateCommandConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// MonitorConfig configures the background health monitor.
type MonitorConfig struct {
	// Enabled turns the monitor loop on during plan execution.
	Enabled bool `yaml:"enabled"`

	// Interval is the sweep period.
	Interval time.Duration `yaml:"interval"`
}

// Config represents foreman configuration options.
type Config struct {
	// DBPath is the path to the sqlite database.
	DBPath string `yaml:"db_path"`

	// LeaseDir holds per-plan lease lock files.
	LeaseDir string `yaml:"lease_dir"`

	// PollInterval is how often delegated run status is checked.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollTimeout is the ceiling on total polling time for one run.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// MaxParallel bounds concurrent task dispatch in parallel phases.
	MaxParallel int `yaml:"max_parallel"`

	// RunTimeout bounds a single agent run including gates.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// SessionIdleTimeout is how long a session may sit unused before
	// being replaced.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	// AgentBin is the claude CLI binary to invoke.
	AgentBin string `yaml:"agent_bin"`

	// RequireApproval holds successful runs for human approval.
	RequireApproval bool `yaml:"require_approval"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written.
	LogDir string `yaml:"log_dir"`

	// Gates contains quality gate configuration.
	Gates GatesConfig `yaml:"gates"`

	// Monitor contains health monitor configuration.
	Monitor MonitorConfig `yaml:"monitor"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		DBPath:             filepath.Join(".foreman", "foreman.db"),
		LeaseDir:           filepath.Join(".foreman", "leases"),
		PollInterval:       5 * time.Second,
		PollTimeout:        30 * time.Minute,
		MaxParallel:        4,
		RunTimeout:         30 * time.Minute,
		SessionIdleTimeout: 2 * time.Hour,
		AgentBin:           "claude",
		RequireApproval:    false,
		LogLevel:           "info",
		LogDir:             filepath.Join(".foreman", "logs"),
		Monitor: MonitorConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// A missing file is not an error: defaults are returned. A malformed file is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations come in as strings ("5s", "30m"), so parse through an
	// intermediate struct.
	type yamlConfig struct {
		DBPath             string      `yaml:"db_path"`
		LeaseDir           string      `yaml:"lease_dir"`
		PollInterval       string      `yaml:"poll_interval"`
		PollTimeout        string      `yaml:"poll_timeout"`
		MaxParallel        int         `yaml:"max_parallel"`
		RunTimeout         string      `yaml:"run_timeout"`
		SessionIdleTimeout string      `yaml:"session_idle_timeout"`
		AgentBin           string      `yaml:"agent_bin"`
		RequireApproval    bool        `yaml:"require_approval"`
		LogLevel           string      `yaml:"log_level"`
		LogDir             string      `yaml:"log_dir"`
		Gates              GatesConfig `yaml:"gates"`
		Monitor            yamlMonitor `yaml:"monitor"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.DBPath != "" {
		cfg.DBPath = yamlCfg.DBPath
	}
	if yamlCfg.LeaseDir != "" {
		cfg.LeaseDir = yamlCfg.LeaseDir
	}
	if err := applyDuration(&cfg.PollInterval, yamlCfg.PollInterval, "poll_interval"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.PollTimeout, yamlCfg.PollTimeout, "poll_timeout"); err != nil {
		return nil, err
	}
	if yamlCfg.MaxParallel != 0 {
		cfg.MaxParallel = yamlCfg.MaxParallel
	}
	if err := applyDuration(&cfg.RunTimeout, yamlCfg.RunTimeout, "run_timeout"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.SessionIdleTimeout, yamlCfg.SessionIdleTimeout, "session_idle_timeout"); err != nil {
		return nil, err
	}
	if yamlCfg.AgentBin != "" {
		cfg.AgentBin = yamlCfg.AgentBin
	}
	if yamlCfg.RequireApproval {
		cfg.RequireApproval = true
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	cfg.Gates = yamlCfg.Gates
	if yamlCfg.Monitor.set {
		cfg.Monitor.Enabled = yamlCfg.Monitor.Enabled
	}
	if err := applyDuration(&cfg.Monitor.Interval, yamlCfg.Monitor.Interval, "monitor.interval"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// yamlMonitor distinguishes "enabled: false" from an absent monitor block.
type yamlMonitor struct {
	Enabled  bool
	Interval string
	set      bool
}

func (m *yamlMonitor) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	m.Enabled = r.Enabled
	m.Interval = r.Interval
	m.set = true
	return nil
}

func applyDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive")
	}
	if c.PollTimeout < c.PollInterval {
		return fmt.Errorf("poll_timeout must be at least poll_interval")
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must not be negative")
	}
	return nil
}
