// Package experiment is the evaluation harness: it draws signals, solves
// their clean observations, attacks each at a range of perturbation budgets
// and aggregates how far the attacked reconstructions drift.
//
// Every trial owns its solvers. Solvers are cloned from one template per
// run, which shares the immutable precomputed inverse across trials.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/nvandessel/admm-attack/internal/admm"
	"github.com/nvandessel/admm-attack/internal/attack"
	"github.com/nvandessel/admm-attack/internal/logging"
	"github.com/nvandessel/admm-attack/internal/sensing"
	"github.com/nvandessel/admm-attack/internal/signal"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Trial is the outcome of attacking one signal at one budget.
type Trial struct {
	Signal         int     `json:"signal"`
	Eps            float64 `json:"eps"`
	Distance       float64 `json:"distance"`
	CleanIters     int     `json:"clean_iters"`
	AttackedIters  int     `json:"attacked_iters"`
	CleanCosine    float64 `json:"clean_cosine"`
	AttackedCosine float64 `json:"attacked_cosine"`
}

// Sink receives trials as they complete. RecordTrial may be called from
// several goroutines at once.
type Sink interface {
	RecordTrial(ctx context.Context, t Trial) error
}

// Runner executes a sweep.
type Runner struct {
	cfg    Config
	logger *slog.Logger
	trials *logging.TrialLogger
	sink   Sink
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTrialLogger records every trial to a JSONL trial log.
func WithTrialLogger(tl *logging.TrialLogger) Option {
	return func(r *Runner) { r.trials = tl }
}

// WithSink forwards every trial to s.
func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Setup draws the operator and the signals of the sweep from the seeded
// random source, in that order.
func (r *Runner) Setup() (*sensing.Operator, []signal.Sample, error) {
	p := r.cfg.Problem
	rng := rand.New(rand.NewPCG(r.cfg.Sweep.Seed, r.cfg.Sweep.Seed))

	op, err := sensing.NewOrthonormal(p.ObservationDim, p.SignalDim, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("building sensing operator: %w", err)
	}

	gen := &signal.Generator{
		Op:        op,
		Sparsity:  p.Sparsity,
		Amplitude: p.Amplitude,
		NoiseStd:  p.NoiseStd,
		Rand:      rng,
	}
	samples, err := gen.GenerateN(r.cfg.Sweep.Signals)
	if err != nil {
		return nil, nil, fmt.Errorf("generating signals: %w", err)
	}
	return op, samples, nil
}

// Run executes the sweep. Results are deterministic for a given Config
// regardless of the number of workers.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	op, samples, err := r.Setup()
	if err != nil {
		return nil, err
	}

	template, err := admm.New(op, r.cfg.Solver, admm.WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("building solver: %w", err)
	}

	radii := r.cfg.Sweep.Radii()
	trials := make([]Trial, len(samples)*len(radii))

	workers := r.cfg.Sweep.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	r.logger.Info("sweep started",
		"signals", len(samples),
		"budgets", len(radii),
		"workers", workers,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sample := range samples {
		out := trials[i*len(radii) : (i+1)*len(radii)]
		g.Go(func() error {
			return r.runSignal(gctx, template, i, sample, radii, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := newReport(radii, trials)
	elapsed := time.Since(start)
	r.trials.Sweep(logging.SweepEvent{
		Signals: len(samples),
		Budgets: len(radii),
		Workers: workers,
		Seed:    r.cfg.Sweep.Seed,
		Trials:  len(trials),
		Elapsed: elapsed,
	})
	r.logger.Info("sweep finished",
		"trials", len(trials),
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return report, nil
}

// runSignal solves one clean observation, then attacks it at every budget
// with a fresh solver and re-solves the adversarial observation on that
// attacked solver.
func (r *Runner) runSignal(ctx context.Context, template *admm.Solver, idx int, sample signal.Sample, radii []float64, out []Trial) error {
	clean := template.Clone()
	sClean, _, err := clean.Solve(sample.Observation)
	if err != nil {
		return fmt.Errorf("signal %d: clean solve: %w", idx, err)
	}
	cleanIters := clean.Iterations()
	cleanCos := Cosine(sClean, sample.Signal)
	r.logger.Debug("clean solve", "signal", idx, "iterations", cleanIters, "cosine", cleanCos)

	for j, eps := range radii {
		if err := ctx.Err(); err != nil {
			return err
		}

		adv := template.Clone()
		res, err := attack.BIM(adv, sample.Observation, sample.Signal, eps, r.cfg.Attack)
		if err != nil {
			return fmt.Errorf("signal %d eps %g: %w", idx, eps, err)
		}
		sAtt, attTrace, err := adv.Solve(res.Adversarial)
		if err != nil {
			return fmt.Errorf("signal %d eps %g: attacked solve: %w", idx, eps, err)
		}

		t := Trial{
			Signal:         idx,
			Eps:            eps,
			Distance:       Distance(sClean, sAtt),
			CleanIters:     cleanIters,
			AttackedIters:  adv.Iterations(),
			CleanCosine:    cleanCos,
			AttackedCosine: Cosine(sAtt, sample.Signal),
		}
		out[j] = t

		r.trials.Trial(logging.TrialEvent{
			Signal:         t.Signal,
			Eps:            t.Eps,
			Perturbation:   mat.Norm(res.Perturbation(sample.Observation), math.Inf(1)),
			Distance:       t.Distance,
			CleanIters:     t.CleanIters,
			AttackedIters:  t.AttackedIters,
			AttackedCosine: t.AttackedCosine,
			AttackedTrace:  attTrace,
		})
		if r.sink != nil {
			if err := r.sink.RecordTrial(ctx, t); err != nil {
				return fmt.Errorf("recording trial: %w", err)
			}
		}
	}
	return nil
}

// Distance returns ||a − b||₂.
func Distance(a, b *mat.VecDense) float64 {
	d := mat.NewVecDense(a.Len(), nil)
	d.SubVec(a, b)
	return mat.Norm(d, 2)
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b *mat.VecDense) float64 {
	na, nb := mat.Norm(a, 2), mat.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return mat.Dot(a, b) / (na * nb)
}
