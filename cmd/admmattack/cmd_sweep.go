package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nvandessel/admm-attack/internal/experiment"
	"github.com/nvandessel/admm-attack/internal/export"
	"github.com/nvandessel/admm-attack/internal/logging"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Attack many signals across a range of budgets",
		Long: `Run the evaluation harness: for each generated signal, reconstruct the
clean observation, then attack it at every budget in [eps_min, eps_max] and
record how far the reconstruction moves. Trials are stored in the result
database unless --no-store is given.

Examples:
  admmattack sweep
  admmattack sweep --signals 20 --eps-steps 10 --workers 8
  admmattack sweep --label baseline --arrow trials.arrow --summary-arrow summary.arrow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			label, _ := cmd.Flags().GetString("label")
			noStore, _ := cmd.Flags().GetBool("no-store")
			trialsPath, _ := cmd.Flags().GetString("arrow")
			summaryPath, _ := cmd.Flags().GetString("summary-arrow")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("signals") {
				cfg.Sweep.Signals, _ = cmd.Flags().GetInt("signals")
			}
			if cmd.Flags().Changed("eps-steps") {
				cfg.Sweep.EpsSteps, _ = cmd.Flags().GetInt("eps-steps")
			}
			if cmd.Flags().Changed("workers") {
				cfg.Sweep.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Sweep.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := newLogger(cmd, cfg)
			trialLog := logging.NewTrialLogger(cfg.Logging.Dir, cfg.Logging.Level)
			defer trialLog.Close()

			opts := []experiment.Option{
				experiment.WithLogger(logger),
				experiment.WithTrialLogger(trialLog),
			}

			var runID string
			if !noStore {
				s, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer s.Close()

				runID, err = s.CreateRun(cmd.Context(), label, cfg.Experiment())
				if err != nil {
					return err
				}
				opts = append(opts, experiment.WithSink(s.TrialSink(runID)))
				logger.Info("recording run", "run_id", runID, "store", s.Path())
			}

			runner, err := experiment.NewRunner(cfg.Experiment(), opts...)
			if err != nil {
				return err
			}
			report, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			summary := report.Summary()

			if trialsPath != "" {
				if err := writeArrowFile(trialsPath, func(f io.WriteSeeker) error {
					return export.WriteTrialsArrow(f, report.Trials)
				}); err != nil {
					return err
				}
			}
			if summaryPath != "" {
				if err := writeArrowFile(summaryPath, func(f io.WriteSeeker) error {
					return export.WriteSummaryArrow(f, summary)
				}); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{
					"run_id":  runID,
					"summary": summary,
				})
			}

			if runID != "" {
				fmt.Fprintf(out, "Run %s\n\n", runID)
			}
			printSummary(out, summary)
			return nil
		},
	}

	cmd.Flags().String("label", "", "Label stored with the run")
	cmd.Flags().Bool("no-store", false, "Do not record the run in the result database")
	cmd.Flags().String("arrow", "", "Write every trial to this Arrow IPC file")
	cmd.Flags().String("summary-arrow", "", "Write the per-budget summary to this Arrow IPC file")
	cmd.Flags().Int("signals", 0, "Number of signals (overrides config)")
	cmd.Flags().Int("eps-steps", 0, "Number of budgets (overrides config)")
	cmd.Flags().Int("workers", 0, "Concurrent signals, 0 for GOMAXPROCS (overrides config)")
	cmd.Flags().Uint64("seed", 0, "Random seed (overrides config)")
	return cmd
}

// printSummary writes a per-budget table.
func printSummary(w io.Writer, rows []experiment.SummaryRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EPS\tTRIALS\tMEAN DIST\tSTD DIST\tMEAN COS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%.4f\t%d\t%.6g\t%.6g\t%.4f\n", r.Eps, r.Trials, r.MeanDistance, r.StdDistance, r.MeanCosine)
	}
	tw.Flush()
}
