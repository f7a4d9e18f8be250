package main

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/nvandessel/admm-attack/internal/admm"
	"github.com/nvandessel/admm-attack/internal/attack"
	"github.com/nvandessel/admm-attack/internal/export"
	"github.com/nvandessel/admm-attack/internal/landscape"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
)

func newLandscapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "landscape",
		Short: "Sample the loss around clean and attacked reconstructions",
		Long: `Reconstruct one signal from its clean and its attacked observation, then
sample the solver loss on the segment between the two estimates and on a
plane through the clean estimate. Grids are written as Arrow IPC files.

Examples:
  admmattack landscape --eps 0.05 --plane plane.arrow --line line.arrow
  admmattack landscape --steps 25 --span 2 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			index, _ := cmd.Flags().GetInt("signal")
			eps, _ := cmd.Flags().GetFloat64("eps")
			planePath, _ := cmd.Flags().GetString("plane")
			linePath, _ := cmd.Flags().GetString("line")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("steps") {
				cfg.Landscape.Steps, _ = cmd.Flags().GetInt("steps")
			}
			if cmd.Flags().Changed("span") {
				cfg.Landscape.Span, _ = cmd.Flags().GetFloat64("span")
			}
			logger := newLogger(cmd, cfg)

			op, sample, err := drawSample(cfg, index)
			if err != nil {
				return err
			}

			clean, err := admm.New(op, cfg.Solver, admm.WithLogger(logger))
			if err != nil {
				return err
			}
			if _, _, err := clean.Solve(sample.Observation); err != nil {
				return err
			}

			attacked := clean.Clone()
			attacked.Reset()
			res, err := attack.BIM(attacked, sample.Observation, sample.Signal, eps, cfg.Attack)
			if err != nil {
				return err
			}
			if _, _, err := attacked.Solve(res.Adversarial); err != nil {
				return err
			}

			line, err := landscape.Line(clean, attacked, sample.Observation, cfg.Landscape.Steps)
			if err != nil {
				return err
			}

			seed := cfg.Sweep.Seed + uint64(index)
			d1, d2, err := landscape.Directions(clean, attacked, rand.New(rand.NewPCG(seed, seed+1)))
			if err != nil {
				return err
			}
			grid, err := landscape.Plane(clean, sample.Observation, d1, d2, cfg.Landscape.Steps, cfg.Landscape.Span)
			if err != nil {
				return err
			}

			if planePath != "" {
				if err := writeArrowFile(planePath, func(w io.WriteSeeker) error {
					return export.WriteGridArrow(w, grid)
				}); err != nil {
					return err
				}
			}
			if linePath != "" {
				if err := writeArrowFile(linePath, func(w io.WriteSeeker) error {
					return export.WriteLineArrow(w, line)
				}); err != nil {
					return err
				}
			}

			summary := map[string]any{
				"signal":     index,
				"eps":        eps,
				"steps":      cfg.Landscape.Steps,
				"span":       cfg.Landscape.Span,
				"line_start": line[0],
				"line_end":   line[len(line)-1],
				"line_max":   floats.Max(line),
				"plane_min":  floats.Min(grid.Loss.RawMatrix().Data),
				"plane_max":  floats.Max(grid.Loss.RawMatrix().Data),
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, summary)
			}
			fmt.Fprintf(out, "Signal %d, eps %g, %d steps\n", index, eps, cfg.Landscape.Steps)
			fmt.Fprintf(out, "  line loss clean -> attacked: %.6g -> %.6g (max %.6g)\n",
				summary["line_start"], summary["line_end"], summary["line_max"])
			fmt.Fprintf(out, "  plane loss range:            [%.6g, %.6g]\n",
				summary["plane_min"], summary["plane_max"])
			if planePath != "" {
				fmt.Fprintf(out, "  plane written to %s\n", planePath)
			}
			if linePath != "" {
				fmt.Fprintf(out, "  line written to %s\n", linePath)
			}
			return nil
		},
	}

	cmd.Flags().Int("signal", 0, "Index of the generated signal")
	cmd.Flags().Float64("eps", 0.05, "L-infinity perturbation budget of the attacked estimate")
	cmd.Flags().Int("steps", 0, "Samples per axis (overrides config)")
	cmd.Flags().Float64("span", 0, "Plane half-width in direction norms (overrides config)")
	cmd.Flags().String("plane", "", "Write the plane grid to this Arrow IPC file")
	cmd.Flags().String("line", "", "Write the line samples to this Arrow IPC file")
	return cmd
}
