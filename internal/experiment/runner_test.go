package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nvandessel/admm-attack/internal/logging"
	"gonum.org/v1/gonum/mat"
)

// smallConfig returns a sweep that finishes quickly.
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Problem.SignalDim = 16
	cfg.Problem.ObservationDim = 40
	cfg.Problem.Sparsity = 3
	cfg.Solver.MaxIter = 2000
	cfg.Sweep.Signals = 6
	cfg.Sweep.EpsMin = 0.005
	cfg.Sweep.EpsMax = 0.05
	cfg.Sweep.EpsSteps = 3
	cfg.Sweep.Seed = 7
	return cfg
}

type recordingSink struct {
	mu     sync.Mutex
	trials []Trial
	err    error
}

func (s *recordingSink) RecordTrial(_ context.Context, t Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.trials = append(s.trials, t)
	return nil
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero signal dim", func(c *Config) { c.Problem.SignalDim = 0 }},
		{"sparsity above dim", func(c *Config) { c.Problem.Sparsity = c.Problem.SignalDim + 1 }},
		{"negative noise", func(c *Config) { c.Problem.NoiseStd = -1 }},
		{"no signals", func(c *Config) { c.Sweep.Signals = 0 }},
		{"no eps steps", func(c *Config) { c.Sweep.EpsSteps = 0 }},
		{"inverted eps range", func(c *Config) { c.Sweep.EpsMin, c.Sweep.EpsMax = 0.1, 0.01 }},
		{"negative workers", func(c *Config) { c.Sweep.Workers = -1 }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidSweep) {
				t.Errorf("Validate() = %v, want ErrInvalidSweep", err)
			}
		})
	}
}

func TestSweep_Radii(t *testing.T) {
	r := Sweep{EpsMin: 0.01, EpsMax: 0.05, EpsSteps: 5}.Radii()
	want := []float64{0.01, 0.02, 0.03, 0.04, 0.05}
	if len(r) != len(want) {
		t.Fatalf("len = %d, want %d", len(r), len(want))
	}
	for i := range want {
		if math.Abs(r[i]-want[i]) > 1e-12 {
			t.Errorf("r[%d] = %v, want %v", i, r[i], want[i])
		}
	}

	single := Sweep{EpsMin: 0.02, EpsMax: 0.09, EpsSteps: 1}.Radii()
	if len(single) != 1 || single[0] != 0.02 {
		t.Errorf("single-step radii = %v, want [0.02]", single)
	}
}

func TestRunner_RunProducesEveryTrial(t *testing.T) {
	cfg := smallConfig()
	sink := &recordingSink{}
	r, err := NewRunner(cfg, WithSink(sink))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := cfg.Sweep.Signals * cfg.Sweep.EpsSteps
	if len(report.Trials) != want {
		t.Errorf("len(Trials) = %d, want %d", len(report.Trials), want)
	}
	if len(sink.trials) != want {
		t.Errorf("sink received %d trials, want %d", len(sink.trials), want)
	}
	if len(report.MeanDistance) != cfg.Sweep.EpsSteps {
		t.Errorf("len(MeanDistance) = %d, want %d", len(report.MeanDistance), cfg.Sweep.EpsSteps)
	}
	for _, tr := range report.Trials {
		if tr.CleanIters <= 0 || tr.AttackedIters <= 0 {
			t.Errorf("trial %+v: expected positive iteration counts", tr)
		}
		if math.IsNaN(tr.Distance) || tr.Distance < 0 {
			t.Errorf("trial %+v: invalid distance", tr)
		}
	}
}

func TestRunner_WritesTrialLog(t *testing.T) {
	cfg := smallConfig()
	cfg.Sweep.Signals = 2
	dir := t.TempDir()
	tl := logging.NewTrialLogger(dir, "debug")
	r, err := NewRunner(cfg, WithTrialLogger(tl))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	tl.Close()

	data, err := os.ReadFile(filepath.Join(dir, "trials.jsonl"))
	if err != nil {
		t.Fatalf("reading trial log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if want := cfg.Sweep.Signals*cfg.Sweep.EpsSteps + 1; len(lines) != want {
		t.Fatalf("trial log has %d lines, want %d", len(lines), want)
	}

	var trials int
	for _, line := range lines {
		var ev struct {
			Kind         string  `json:"kind"`
			Eps          float64 `json:"eps"`
			Perturbation float64 `json:"perturbation_linf"`
			Trials       int     `json:"trials"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("parsing %q: %v", line, err)
		}
		switch ev.Kind {
		case logging.KindTrial:
			trials++
			if ev.Perturbation > ev.Eps+1e-12 {
				t.Errorf("logged perturbation %v exceeds budget %v", ev.Perturbation, ev.Eps)
			}
		case logging.KindSweep:
			if ev.Trials != cfg.Sweep.Signals*cfg.Sweep.EpsSteps {
				t.Errorf("sweep event trials = %d", ev.Trials)
			}
		default:
			t.Errorf("unexpected event kind %q", ev.Kind)
		}
	}
	if trials != cfg.Sweep.Signals*cfg.Sweep.EpsSteps {
		t.Errorf("trial events = %d", trials)
	}
}

func TestRunner_DeterministicAcrossWorkers(t *testing.T) {
	cfg := smallConfig()

	run := func(workers int) *Report {
		t.Helper()
		c := cfg
		c.Sweep.Workers = workers
		r, err := NewRunner(c)
		if err != nil {
			t.Fatalf("NewRunner: %v", err)
		}
		report, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run(workers=%d): %v", workers, err)
		}
		return report
	}

	serial, parallel := run(1), run(4)
	for i := range serial.Trials {
		if serial.Trials[i] != parallel.Trials[i] {
			t.Fatalf("trial %d differs: %+v vs %+v", i, serial.Trials[i], parallel.Trials[i])
		}
	}
}

// Larger budgets should displace reconstructions further on average.
func TestRunner_MeanDistanceGrowsWithBudget(t *testing.T) {
	cfg := smallConfig()
	cfg.Sweep.Signals = 12
	cfg.Sweep.Workers = 4

	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := 1; i < len(report.MeanDistance); i++ {
		if report.MeanDistance[i] < report.MeanDistance[i-1] {
			t.Errorf("mean distance decreased: eps %v -> %v gives %v -> %v",
				report.Radii[i-1], report.Radii[i], report.MeanDistance[i-1], report.MeanDistance[i])
		}
	}
	if report.MeanDistance[0] <= 0 {
		t.Errorf("mean distance at smallest budget = %v, want > 0", report.MeanDistance[0])
	}
}

func TestRunner_SinkErrorStopsRun(t *testing.T) {
	sinkErr := errors.New("disk full")
	r, err := NewRunner(smallConfig(), WithSink(&recordingSink{err: sinkErr}))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := r.Run(context.Background()); !errors.Is(err, sinkErr) {
		t.Errorf("Run() = %v, want %v", err, sinkErr)
	}
}

func TestRunner_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewRunner(smallConfig())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestReport_SummaryEmptyBudget(t *testing.T) {
	r := &Report{
		Radii:  []float64{0.01, 0.02},
		Trials: []Trial{{Eps: 0.01, Distance: 1}, {Eps: 0.01, Distance: 3}},
	}
	rows := r.Summary()
	if rows[0].Trials != 2 || rows[0].MeanDistance != 2 {
		t.Errorf("rows[0] = %+v, want 2 trials with mean 2", rows[0])
	}
	if rows[1].Trials != 0 || !math.IsNaN(rows[1].MeanDistance) {
		t.Errorf("rows[1] = %+v, want empty row with NaN mean", rows[1])
	}
}

func TestCosineAndDistance(t *testing.T) {
	a := mat.NewVecDense(2, []float64{3, 4})
	b := mat.NewVecDense(2, []float64{0, 0})

	if got := Distance(a, b); got != 5 {
		t.Errorf("Distance = %v, want 5", got)
	}
	if got := Cosine(a, b); got != 0 {
		t.Errorf("Cosine with zero vector = %v, want 0", got)
	}
	if got := Cosine(a, a); math.Abs(got-1) > 1e-12 {
		t.Errorf("Cosine(a, a) = %v, want 1", got)
	}
}
