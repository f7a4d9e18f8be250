package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/admm-attack/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage admmattack configuration",
		Long: `View and modify admmattack configuration settings.

Configuration is stored in ~/.admmattack/config.yaml, or in the file named
by --config.

Examples:
  admmattack config list                          # Show all settings
  admmattack config get solver.penalty            # Get a specific setting
  admmattack config set sweep.workers 8           # Set a setting
  admmattack config set store.path ':memory:'`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadRawConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, cfg)
			}

			fmt.Fprintf(out, "Configuration (%s):\n", configPath(cmd))
			for _, section := range configSections {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%s:\n", section.title)
				for _, key := range section.keys {
					value, _ := getConfigValue(cfg, key)
					fmt.Fprintf(out, "  %-26s %v\n", key+":", value)
				}
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadRawConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			value, found := getConfigValue(cfg, key)
			if !found {
				if jsonOut {
					return writeJSON(out, map[string]any{
						"error": "key not found",
						"key":   key,
					})
				}
				fmt.Fprintf(out, "Unknown configuration key: %s\n", key)
				return nil
			}

			if jsonOut {
				return writeJSON(out, map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(out, "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]

			cfg, err := loadRawConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = setConfigValue(cfg, key, value)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				if jsonOut {
					return writeJSON(out, map[string]any{"error": err.Error(), "key": key})
				}
				fmt.Fprintf(out, "Error: %v\n", err)
				return nil
			}

			if err := cfg.Save(configPath(cmd)); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return writeJSON(out, map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(out, "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// configSections groups keys for 'config list'.
var configSections = []struct {
	title string
	keys  []string
}{
	{"Problem", []string{"problem.signal_dim", "problem.observation_dim", "problem.sparsity", "problem.amplitude", "problem.noise_std"}},
	{"Solver", []string{"solver.step_size", "solver.penalty", "solver.regularization", "solver.max_iter", "solver.tolerance"}},
	{"Attack", []string{"attack.alpha", "attack.steps"}},
	{"Sweep", []string{"sweep.signals", "sweep.eps_min", "sweep.eps_max", "sweep.eps_steps", "sweep.workers", "sweep.seed"}},
	{"Landscape", []string{"landscape.steps", "landscape.span"}},
	{"Logging", []string{"logging.level", "logging.dir"}},
	{"Store", []string{"store.path"}},
}

// configPath returns the file 'config set' writes to.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(config.DirName, "config.yaml")
	}
	return filepath.Join(homeDir, config.DirName, "config.yaml")
}

// loadRawConfig loads the config file without environment overrides or
// validation, so 'config set' never persists values taken from the environment.
func loadRawConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (any, bool) {
	switch key {
	case "problem.signal_dim":
		return cfg.Problem.SignalDim, true
	case "problem.observation_dim":
		return cfg.Problem.ObservationDim, true
	case "problem.sparsity":
		return cfg.Problem.Sparsity, true
	case "problem.amplitude":
		return cfg.Problem.Amplitude, true
	case "problem.noise_std":
		return cfg.Problem.NoiseStd, true
	case "solver.step_size":
		return cfg.Solver.StepSize, true
	case "solver.penalty":
		return cfg.Solver.Penalty, true
	case "solver.regularization":
		return cfg.Solver.Regularization, true
	case "solver.max_iter":
		return cfg.Solver.MaxIter, true
	case "solver.tolerance":
		return cfg.Solver.Tolerance, true
	case "attack.alpha":
		return cfg.Attack.Alpha, true
	case "attack.steps":
		return cfg.Attack.Steps, true
	case "sweep.signals":
		return cfg.Sweep.Signals, true
	case "sweep.eps_min":
		return cfg.Sweep.EpsMin, true
	case "sweep.eps_max":
		return cfg.Sweep.EpsMax, true
	case "sweep.eps_steps":
		return cfg.Sweep.EpsSteps, true
	case "sweep.workers":
		return cfg.Sweep.Workers, true
	case "sweep.seed":
		return cfg.Sweep.Seed, true
	case "landscape.steps":
		return cfg.Landscape.Steps, true
	case "landscape.span":
		return cfg.Landscape.Span, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "logging.dir":
		return cfg.Logging.Dir, true
	case "store.path":
		return cfg.Store.Path, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "problem.signal_dim":
		return parseInt(key, value, &cfg.Problem.SignalDim)
	case "problem.observation_dim":
		return parseInt(key, value, &cfg.Problem.ObservationDim)
	case "problem.sparsity":
		return parseInt(key, value, &cfg.Problem.Sparsity)
	case "problem.amplitude":
		return parseFloat(key, value, &cfg.Problem.Amplitude)
	case "problem.noise_std":
		return parseFloat(key, value, &cfg.Problem.NoiseStd)
	case "solver.step_size":
		return parseFloat(key, value, &cfg.Solver.StepSize)
	case "solver.penalty":
		return parseFloat(key, value, &cfg.Solver.Penalty)
	case "solver.regularization":
		return parseFloat(key, value, &cfg.Solver.Regularization)
	case "solver.max_iter":
		return parseInt(key, value, &cfg.Solver.MaxIter)
	case "solver.tolerance":
		return parseFloat(key, value, &cfg.Solver.Tolerance)
	case "attack.alpha":
		return parseFloat(key, value, &cfg.Attack.Alpha)
	case "attack.steps":
		return parseInt(key, value, &cfg.Attack.Steps)
	case "sweep.signals":
		return parseInt(key, value, &cfg.Sweep.Signals)
	case "sweep.eps_min":
		return parseFloat(key, value, &cfg.Sweep.EpsMin)
	case "sweep.eps_max":
		return parseFloat(key, value, &cfg.Sweep.EpsMax)
	case "sweep.eps_steps":
		return parseInt(key, value, &cfg.Sweep.EpsSteps)
	case "sweep.workers":
		return parseInt(key, value, &cfg.Sweep.Workers)
	case "sweep.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %s (must be a non-negative integer)", key, value)
		}
		cfg.Sweep.Seed = n
	case "landscape.steps":
		return parseInt(key, value, &cfg.Landscape.Steps)
	case "landscape.span":
		return parseFloat(key, value, &cfg.Landscape.Span)
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.dir":
		cfg.Logging.Dir = value
	case "store.path":
		cfg.Store.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func parseInt(key, value string, dst *int) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %s (must be an integer)", key, value)
	}
	*dst = n
	return nil
}

func parseFloat(key, value string, dst *float64) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %s (must be a number)", key, value)
	}
	*dst = f
	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
