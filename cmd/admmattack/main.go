package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nvandessel/admm-attack/internal/config"
	"github.com/nvandessel/admm-attack/internal/experiment"
	"github.com/nvandessel/admm-attack/internal/logging"
	"github.com/nvandessel/admm-attack/internal/sensing"
	"github.com/nvandessel/admm-attack/internal/signal"
	"github.com/nvandessel/admm-attack/internal/store"
	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "admmattack",
		Short: "Adversarial robustness of ADMM sparse recovery",
		Long: `admmattack reconstructs sparse signals from noisy linear observations
with an ADMM solver and measures how far an L-infinity bounded adversarial
perturbation, found by the Basic Iterative Method through the unrolled
solver, can move the reconstruction.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.admmattack/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn, info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSolveCmd(),
		newAttackCmd(),
		newSweepCmd(),
		newLandscapeCmd(),
		newResultsCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// signalContext returns a context canceled on the first interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// loadConfig loads the config named by --config (or the default location),
// applies --log-level and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the operational logger writing to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// drawSample returns the sensing operator of cfg and the sample at index,
// exactly as a sweep with the same seed would draw them.
func drawSample(cfg *config.Config, index int) (*sensing.Operator, signal.Sample, error) {
	if index < 0 {
		return nil, signal.Sample{}, fmt.Errorf("signal index must be non-negative, got %d", index)
	}
	exp := cfg.Experiment()
	exp.Sweep.Signals = index + 1
	r, err := experiment.NewRunner(exp)
	if err != nil {
		return nil, signal.Sample{}, err
	}
	op, samples, err := r.Setup()
	if err != nil {
		return nil, signal.Sample{}, err
	}
	return op, samples[index], nil
}

// openStore opens the configured result store.
func openStore(cfg *config.Config) (*store.SQLiteResultStore, error) {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	return s, nil
}

// writeJSON encodes v to w with indentation.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// createFile creates path and its parent directories.
func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}
