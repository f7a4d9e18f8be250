package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nvandessel/admm-attack/internal/export"
	"github.com/spf13/cobra"
)

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect stored sweep results",
		Long: `List, summarize, export and delete runs recorded by 'admmattack sweep'.

Examples:
  admmattack results list
  admmattack results show <run-id>
  admmattack results export <run-id> --out trials.arrow
  admmattack results delete <run-id>`,
	}

	cmd.AddCommand(
		newResultsListCmd(),
		newResultsShowCmd(),
		newResultsExportCmd(),
		newResultsDeleteCmd(),
	)
	return cmd
}

func newResultsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.Runs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tCREATED\tTRIALS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ID, valueOrDefault(r.Label, "-"),
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Trials)
			}
			return tw.Flush()
		},
	}
}

func newResultsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the mean reconstruction distance per budget of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			means, err := s.MeanDistanceByEps(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{"run_id": args[0], "means": means})
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EPS\tTRIALS\tMEAN DIST")
			for _, m := range means {
				fmt.Fprintf(tw, "%.4f\t%d\t%.6g\n", m.Eps, m.Trials, m.MeanDistance)
			}
			return tw.Flush()
		},
	}
}

func newResultsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export the trials of a run as an Arrow IPC file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outPath, _ := cmd.Flags().GetString("out")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			trials, err := s.Trials(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := writeArrowFile(outPath, func(w io.WriteSeeker) error {
				return export.WriteTrialsArrow(w, trials)
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{"run_id": args[0], "trials": len(trials), "path": outPath})
			}
			fmt.Fprintf(out, "Exported %d trials to %s\n", len(trials), outPath)
			return nil
		},
	}
	cmd.Flags().String("out", "trials.arrow", "Output file")
	return cmd
}

func newResultsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its trials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{"status": "deleted", "run_id": args[0]})
			}
			fmt.Fprintf(out, "Deleted run %s\n", args[0])
			return nil
		},
	}
}
