// Package config loads .adws/config.yaml and applies ADWS_* environment
// overrides on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the per-project state directory.
	Dir = ".adws"

	// FileName is the config file inside Dir.
	FileName = "config.yaml"
)

// TrackerConfig selects the issue tracker CLI.
type TrackerConfig struct {
	Binary string `yaml:"binary"`
}

// AgentConfig configures the agent CLI invoker.
type AgentConfig struct {
	Binary            string  `yaml:"binary"`
	Model             string  `yaml:"model"`
	PermissionMode    string  `yaml:"permission_mode"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
}

// CooldownConfig is the Tier-1 retry schedule: Base after the first
// failure, multiplied per attempt, capped at Max.
type CooldownConfig struct {
	Base       time.Duration `yaml:"base"`
	Multiplier float64       `yaml:"multiplier"`
	Max        time.Duration `yaml:"max"`
}

// TriageConfig holds triage settings.
type TriageConfig struct {
	Cooldowns CooldownConfig `yaml:"cooldowns"`
}

// TriggerConfig holds cron-trigger settings.
type TriggerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Concurrency  int           `yaml:"concurrency"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the runtime configuration.
type Config struct {
	WorkDir       string        `yaml:"work_dir"`
	WorkflowsFile string        `yaml:"workflows_file"`
	Tracker       TrackerConfig `yaml:"tracker"`
	Agent         AgentConfig   `yaml:"agent"`
	Triage        TriageConfig  `yaml:"triage"`
	Trigger       TriggerConfig `yaml:"trigger"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	Log           LogConfig     `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WorkDir: ".",
		Tracker: TrackerConfig{Binary: "bd"},
		Agent: AgentConfig{
			Binary:            "claude",
			Model:             "sonnet",
			PermissionMode:    "acceptEdits",
			RequestsPerMinute: 6,
		},
		Triage: TriageConfig{Cooldowns: CooldownConfig{
			Base:       30 * time.Minute,
			Multiplier: 4,
			Max:        8 * time.Hour,
		}},
		Trigger: TriggerConfig{PollInterval: 60 * time.Second, Concurrency: 1},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Path returns the default config location under workDir.
func Path(workDir string) string {
	return filepath.Join(workDir, Dir, FileName)
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch {
	case c.Tracker.Binary == "":
		return errors.New("tracker.binary must be set")
	case c.Agent.Binary == "":
		return errors.New("agent.binary must be set")
	case c.Trigger.Concurrency < 1:
		return fmt.Errorf("trigger.concurrency must be >= 1, got %d", c.Trigger.Concurrency)
	case c.Trigger.PollInterval <= 0:
		return fmt.Errorf("trigger.poll_interval must be positive, got %s", c.Trigger.PollInterval)
	case c.Triage.Cooldowns.Base <= 0 || c.Triage.Cooldowns.Max < c.Triage.Cooldowns.Base:
		return errors.New("triage.cooldowns: base must be positive and max >= base")
	case c.Triage.Cooldowns.Multiplier < 1:
		return errors.New("triage.cooldowns.multiplier must be >= 1")
	case c.Agent.RequestsPerMinute < 0:
		return errors.New("agent.requests_per_minute must not be negative")
	}
	return nil
}

// StateDir is WorkDir/.adws.
func (c Config) StateDir() string {
	return filepath.Join(c.WorkDir, Dir)
}

// RunsDir is where run records and context bundles are written.
func (c Config) RunsDir() string {
	return filepath.Join(c.StateDir(), "runs")
}

// EventsFile is the JSONL event log.
func (c Config) EventsFile() string {
	return filepath.Join(c.StateDir(), "events.jsonl")
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ADWS_WORK_DIR":              &c.WorkDir,
		"ADWS_WORKFLOWS_FILE":        &c.WorkflowsFile,
		"ADWS_TRACKER_BINARY":        &c.Tracker.Binary,
		"ADWS_AGENT_BINARY":          &c.Agent.Binary,
		"ADWS_AGENT_MODEL":           &c.Agent.Model,
		"ADWS_AGENT_PERMISSION_MODE": &c.Agent.PermissionMode,
		"ADWS_METRICS_ADDR":          &c.MetricsAddr,
		"ADWS_LOG_LEVEL":             &c.Log.Level,
		"ADWS_LOG_FORMAT":            &c.Log.Format,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("ADWS_POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ADWS_POLL_INTERVAL: %w", err)
		}
		c.Trigger.PollInterval = d
	}
	if v, ok := lookup("ADWS_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ADWS_CONCURRENCY: %w", err)
		}
		c.Trigger.Concurrency = n
	}
	if v, ok := lookup("ADWS_AGENT_REQUESTS_PER_MINUTE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ADWS_AGENT_REQUESTS_PER_MINUTE: %w", err)
		}
		c.Agent.RequestsPerMinute = f
	}
	return nil
}
