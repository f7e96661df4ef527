// Package config loads and validates the vigil run configuration.
// Strategy and gate settings are parsed into closed types at load time so
// a bad name fails before the loop starts, not at the point of use.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lyndonlyu/vigil/internal/breaker"
	"github.com/lyndonlyu/vigil/internal/gate"
	"github.com/lyndonlyu/vigil/internal/rollback"
)

// ConfirmationConfig controls the pre-loop approval gate.
type ConfirmationConfig struct {
	Enabled        bool   `yaml:"enabled"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	AutoApprove    bool   `yaml:"auto_approve"`
	MarkerPath     string `yaml:"marker_path"`
	EnvVar         string `yaml:"env_var"`
}

// FixConfig configures the external auto-remediation command.
type FixConfig struct {
	Command string `yaml:"command"`
}

// Config is the complete vigil configuration.
type Config struct {
	Workspace        string             `yaml:"workspace"`
	Gates            []gate.Spec        `yaml:"gates"`
	Fix              FixConfig          `yaml:"fix"`
	MaxIterations    int                `yaml:"max_iterations"`
	DryRun           bool               `yaml:"dry_run"`
	AutoCommit       bool               `yaml:"auto_commit"`
	Strategy         string             `yaml:"strategy"`
	BreakerThreshold int                `yaml:"breaker_threshold"`
	StrictVerify     bool               `yaml:"strict_verify"`
	CleanupCommand   string             `yaml:"cleanup_command"`
	RetentionDays    int                `yaml:"retention_days"`
	Confirmation     ConfirmationConfig `yaml:"confirmation"`

	// ParsedStrategy is populated by Validate.
	ParsedStrategy rollback.Strategy `yaml:"-"`
}

// Default returns a configuration with sensible defaults. The workspace
// defaults to the current directory.
func Default() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		Workspace:        cwd,
		MaxIterations:    10,
		AutoCommit:       true,
		Strategy:         "RESET",
		BreakerThreshold: breaker.DefaultThreshold,
		RetentionDays:    7,
		Confirmation: ConfirmationConfig{
			Enabled:        true,
			TimeoutSeconds: 60,
			PollIntervalMs: 200,
			MarkerPath:     filepath.Join(".git", "vigil", "approve"),
			EnvVar:         "VIGIL_APPROVE",
		},
	}
}

// Load reads the config at path, falling back to defaults when the file
// does not exist, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// Ensure defaults for zero values.
	if cfg.Workspace == "" {
		cfg.Workspace, _ = os.Getwd()
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 10
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "RESET"
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = breaker.DefaultThreshold
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 7
	}
	if cfg.Confirmation.TimeoutSeconds == 0 {
		cfg.Confirmation.TimeoutSeconds = 60
	}
	if cfg.Confirmation.PollIntervalMs == 0 {
		cfg.Confirmation.PollIntervalMs = 200
	}
	if cfg.Confirmation.MarkerPath == "" {
		cfg.Confirmation.MarkerPath = filepath.Join(".git", "vigil", "approve")
	}
	if cfg.Confirmation.EnvVar == "" {
		cfg.Confirmation.EnvVar = "VIGIL_APPROVE"
	}

	return cfg, cfg.Validate()
}

// Validate checks enum values and structural constraints, populating
// ParsedStrategy on success.
func (c *Config) Validate() error {
	strategy, err := rollback.ParseStrategy(c.Strategy)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.ParsedStrategy = strategy

	if c.MaxIterations < 1 {
		return fmt.Errorf("config: max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("config: breaker_threshold must be at least 1, got %d", c.BreakerThreshold)
	}

	seen := make(map[string]bool, len(c.Gates))
	for _, g := range c.Gates {
		if g.Name == "" {
			return fmt.Errorf("config: gate with empty name")
		}
		if g.Command == "" {
			return fmt.Errorf("config: gate %q has no command", g.Name)
		}
		if seen[g.Name] {
			return fmt.Errorf("config: duplicate gate %q", g.Name)
		}
		seen[g.Name] = true
	}

	return nil
}

// VigilDir returns the workspace-local vigil data directory. It lives under
// .git so checkpoints never capture vigil's own artifacts.
func (c *Config) VigilDir() string {
	return filepath.Join(c.Workspace, ".git", "vigil")
}

// EnsureDirs creates the vigil data directories.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.VigilDir(),
		filepath.Join(c.VigilDir(), "runs"),
		filepath.Join(c.VigilDir(), "journal"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}
