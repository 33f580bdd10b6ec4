// Package config holds the operator-editable daemon settings, stored as flat
// JSON in the state directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the config file inside the state directory.
const FileName = "config.json"

// Config represents the flat foreman configuration. Durations are stored in
// seconds so the file stays hand-editable.
type Config struct {
	Version                    string            `json:"version"`
	PollIntervalSeconds        int               `json:"poll_interval_seconds"`
	SpecBacklogTarget          int               `json:"spec_backlog_target"`
	MaxParallel                int               `json:"max_parallel"`
	TaskTimeoutSeconds         int               `json:"task_timeout_seconds"`
	MergeRetryLimit            int               `json:"merge_retry_limit"`
	RetentionDays              int               `json:"retention_days"`
	MaintenanceIntervalSeconds int               `json:"maintenance_interval_seconds"`
	TrunkPath                  string            `json:"trunk_path"`
	BacklogPath                string            `json:"backlog_path,omitempty"`
	ContextsDir                string            `json:"contexts_dir,omitempty"`
	OracleCommand              string            `json:"oracle_command,omitempty"`
	WorkerCommands             map[string]string `json:"worker_commands"`
	UseTmux                    bool              `json:"use_tmux"`
	TmuxSession                string            `json:"tmux_session,omitempty"`
}

// DefaultConfig returns the settings a fresh install starts from. TrunkPath
// has no sensible default; doctor and run refuse to start until it is set.
func DefaultConfig() *Config {
	return &Config{
		Version:                    "1",
		PollIntervalSeconds:        30,
		SpecBacklogTarget:          3,
		MaxParallel:                3,
		TaskTimeoutSeconds:         1800,
		MergeRetryLimit:            3,
		RetentionDays:              30,
		MaintenanceIntervalSeconds: 3600,
		WorkerCommands: map[string]string{
			"architect": "foreman-worker",
			"builder":   "foreman-worker",
			"planner":   "foreman-worker",
		},
		UseTmux:     false,
		TmuxSession: "foreman",
	}
}

// Load reads config.json from the state directory. A missing file yields the
// defaults; a present but unreadable or malformed file is an error so a typo
// never silently reverts the daemon to default behavior.
func Load(stateDir string) (*Config, error) {
	path := filepath.Join(stateDir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// Save writes config.json to the state directory, creating it if needed.
func Save(stateDir string, cfg *Config) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(stateDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// normalize fills fields a hand-edited file may have dropped, so partial
// configs keep working.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = d.PollIntervalSeconds
	}
	if c.SpecBacklogTarget < 0 {
		c.SpecBacklogTarget = d.SpecBacklogTarget
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = d.MaxParallel
	}
	if c.TaskTimeoutSeconds < 0 {
		c.TaskTimeoutSeconds = d.TaskTimeoutSeconds
	}
	if c.MergeRetryLimit <= 0 {
		c.MergeRetryLimit = d.MergeRetryLimit
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.MaintenanceIntervalSeconds < 0 {
		c.MaintenanceIntervalSeconds = d.MaintenanceIntervalSeconds
	}
	if len(c.WorkerCommands) == 0 {
		c.WorkerCommands = d.WorkerCommands
	}
	if c.TmuxSession == "" {
		c.TmuxSession = d.TmuxSession
	}
}

// PollInterval is the pause between work loop cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// TaskTimeout is the age past which a tracked task raises an alert. Zero
// disables the alerts.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// MaintenanceInterval gates the periodic jobs. Zero disables them.
func (c *Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalSeconds) * time.Second
}

// ResolvedBacklogPath is the backlog file, defaulting to backlog/backlog.yaml
// under the trunk.
func (c *Config) ResolvedBacklogPath() string {
	if c.BacklogPath != "" {
		return c.BacklogPath
	}
	if c.TrunkPath == "" {
		return ""
	}
	return filepath.Join(c.TrunkPath, "backlog", "backlog.yaml")
}

// ResolvedContextsDir is where isolated worker contexts are created,
// defaulting to contexts/ under the state directory.
func (c *Config) ResolvedContextsDir(stateDir string) string {
	if c.ContextsDir != "" {
		return c.ContextsDir
	}
	return filepath.Join(stateDir, "contexts")
}
