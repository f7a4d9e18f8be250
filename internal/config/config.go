// Package config provides unified configuration loading for admmattack.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/admm-attack/internal/admm"
	"github.com/nvandessel/admm-attack/internal/attack"
	"github.com/nvandessel/admm-attack/internal/constants"
	"github.com/nvandessel/admm-attack/internal/experiment"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user directory holding the config file, logs and results.
const DirName = ".admmattack"

// Config contains all admmattack configuration settings.
type Config struct {
	// Problem describes the synthetic recovery problem.
	Problem experiment.Problem `json:"problem" yaml:"problem"`

	// Solver contains the ADMM hyperparameters.
	Solver admm.Config `json:"solver" yaml:"solver"`

	// Attack contains the BIM step size and step count.
	Attack attack.Options `json:"attack" yaml:"attack"`

	// Sweep contains the perturbation budgets and worker fan-out.
	Sweep experiment.Sweep `json:"sweep" yaml:"sweep"`

	// Landscape configures loss-landscape sampling.
	Landscape LandscapeConfig `json:"landscape" yaml:"landscape"`

	// Logging contains settings for operational and trial logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store configures the result database.
	Store StoreConfig `json:"store" yaml:"store"`
}

// LandscapeConfig configures loss-landscape grids.
type LandscapeConfig struct {
	// Steps is the number of samples per axis.
	Steps int `json:"steps" yaml:"steps"`

	// Span is the half-width of the plane in units of the direction norm.
	Span float64 `json:"span" yaml:"span"`
}

// LoggingConfig configures admmattack's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "warn", "info" (default), "debug", or "trace".
	// "debug" enables trial logging to <dir>/trials.jsonl.
	Level string `json:"level" yaml:"level"`

	// Dir is where trials.jsonl is written. Supports ${VAR} syntax.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StoreConfig configures the SQLite result store.
type StoreConfig struct {
	// Path is the database file. ":memory:" keeps results transient.
	// Supports ${VAR} syntax.
	Path string `json:"path" yaml:"path"`
}

// Default returns a Config with the reference experiment settings.
func Default() *Config {
	exp := experiment.DefaultConfig()
	base := defaultBaseDir()
	return &Config{
		Problem: exp.Problem,
		Solver:  exp.Solver,
		Attack:  exp.Attack,
		Sweep:   exp.Sweep,
		Landscape: LandscapeConfig{
			Steps: constants.DefaultLandscapeSteps,
			Span:  1,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   base,
		},
		Store: StoreConfig{
			Path: filepath.Join(base, "results.db"),
		},
	}
}

// Experiment returns the sections that define a sweep.
func (c *Config) Experiment() experiment.Config {
	return experiment.Config{
		Problem: c.Problem,
		Solver:  c.Solver,
		Attack:  c.Attack,
		Sweep:   c.Sweep,
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.admmattack/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, DirName, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads path if non-empty, otherwise the default locations.
// Environment overrides are applied in both cases.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)
	config.Logging.Dir = expandEnvVars(config.Logging.Dir)

	return config, nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Experiment().Validate(); err != nil {
		return err
	}

	if c.Landscape.Steps < 2 {
		return fmt.Errorf("landscape steps must be at least 2, got %d", c.Landscape.Steps)
	}
	if !(c.Landscape.Span > 0) {
		return fmt.Errorf("landscape span must be positive, got %v", c.Landscape.Span)
	}

	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	envFloat("ADMMATTACK_STEP_SIZE", &config.Solver.StepSize)
	envFloat("ADMMATTACK_PENALTY", &config.Solver.Penalty)
	envFloat("ADMMATTACK_REGULARIZATION", &config.Solver.Regularization)
	envInt("ADMMATTACK_MAX_ITER", &config.Solver.MaxIter)
	envFloat("ADMMATTACK_TOLERANCE", &config.Solver.Tolerance)

	envFloat("ADMMATTACK_ATTACK_ALPHA", &config.Attack.Alpha)
	envInt("ADMMATTACK_ATTACK_STEPS", &config.Attack.Steps)

	envInt("ADMMATTACK_SIGNALS", &config.Sweep.Signals)
	envFloat("ADMMATTACK_EPS_MIN", &config.Sweep.EpsMin)
	envFloat("ADMMATTACK_EPS_MAX", &config.Sweep.EpsMax)
	envInt("ADMMATTACK_EPS_STEPS", &config.Sweep.EpsSteps)
	envInt("ADMMATTACK_WORKERS", &config.Sweep.Workers)
	if v := os.Getenv("ADMMATTACK_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Sweep.Seed = n
		}
	}

	if v := os.Getenv("ADMMATTACK_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("ADMMATTACK_LOG_DIR"); v != "" {
		config.Logging.Dir = v
	}
	if v := os.Getenv("ADMMATTACK_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// defaultBaseDir returns ~/.admmattack, or a relative .admmattack when the
// home directory is unknown.
func defaultBaseDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(homeDir, DirName)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
