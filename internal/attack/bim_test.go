package attack

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/admm-attack/internal/admm"
	"github.com/nvandessel/admm-attack/internal/sensing"
	"gonum.org/v1/gonum/mat"
)

// identitySolver returns the observation as its estimate; its gradient is the seed.
type identitySolver struct {
	solves int
	last   *mat.VecDense
}

func (s *identitySolver) Solve(x *mat.VecDense) (*mat.VecDense, []float64, error) {
	s.solves++
	s.last = mat.VecDenseCopyOf(x)
	return s.last, nil, nil
}

func (s *identitySolver) Gradient(seed *mat.VecDense) (*mat.VecDense, error) {
	return mat.VecDenseCopyOf(seed), nil
}

// plainSolver cannot be differentiated.
type plainSolver struct{}

func (plainSolver) Solve(x *mat.VecDense) (*mat.VecDense, []float64, error) {
	return mat.VecDenseCopyOf(x), nil, nil
}

// brokenSolver has a severed gradient path.
type brokenSolver struct {
	plainSolver
	grad *mat.VecDense
	err  error
}

func (b brokenSolver) Gradient(*mat.VecDense) (*mat.VecDense, error) {
	return b.grad, b.err
}

// resettingSolver solves every observation from a zeroed state, making the
// estimate a fixed function of the observation.
type resettingSolver struct {
	*admm.Solver
}

func (r resettingSolver) Solve(x *mat.VecDense) (*mat.VecDense, []float64, error) {
	r.Reset()
	return r.Solver.Solve(x)
}

func TestBIM_ZeroBudgetIsNoOp(t *testing.T) {
	solver := &identitySolver{}
	original := mat.NewVecDense(4, []float64{0.1, -0.2, 0.3, 0})
	truth := mat.NewVecDense(4, nil)

	res, err := BIM(solver, original, truth, 0, DefaultOptions())
	if err != nil {
		t.Fatalf("BIM: %v", err)
	}
	if !mat.Equal(res.Adversarial, original) {
		t.Errorf("eps=0 adversarial = %v, want original", res.Adversarial.RawVector().Data)
	}
	if res.Adversarial == original {
		t.Error("eps=0 returned the caller's vector instead of a copy")
	}
	if solver.solves != 0 {
		t.Errorf("eps=0 ran %d solves, want 0", solver.solves)
	}
}

func TestBIM_InvalidInputs(t *testing.T) {
	x := mat.NewVecDense(2, nil)
	tests := []struct {
		name string
		eps  float64
		opts Options
		want error
	}{
		{"negative eps", -0.1, DefaultOptions(), ErrInvalidBudget},
		{"NaN eps", math.NaN(), DefaultOptions(), ErrInvalidBudget},
		{"negative alpha", 0.1, Options{Alpha: -1, Steps: 1}, ErrInvalidOptions},
		{"negative steps", 0.1, Options{Alpha: 0.01, Steps: -1}, ErrInvalidOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BIM(&identitySolver{}, x, x, tt.eps, tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("BIM() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBIM_DifferentiationErrors(t *testing.T) {
	x := mat.NewVecDense(3, []float64{1, 2, 3})
	truth := mat.NewVecDense(3, nil)

	tests := []struct {
		name   string
		solver Solver
	}{
		{"not differentiable", plainSolver{}},
		{"gradient error", brokenSolver{err: admm.ErrNoTape}},
		{"nil gradient", brokenSolver{}},
		{"non-finite gradient", brokenSolver{grad: mat.NewVecDense(3, []float64{1, math.NaN(), 0})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BIM(tt.solver, x, truth, 0.1, DefaultOptions())
			if !errors.Is(err, ErrDifferentiation) {
				t.Errorf("BIM() error = %v, want ErrDifferentiation", err)
			}
		})
	}
}

func TestBIM_ProjectsOntoBudget(t *testing.T) {
	original := mat.NewVecDense(4, []float64{0.5, -0.5, 0.2, 1})
	truth := mat.NewVecDense(4, []float64{0, 0, 0.3, 1})

	res, err := BIM(&identitySolver{}, original, truth, 0.025, Options{Alpha: 0.01, Steps: 5})
	if err != nil {
		t.Fatalf("BIM: %v", err)
	}

	// The identity estimate moves away from the truth by alpha per step
	// until the budget clamps it; a zero gradient leaves a component alone.
	want := []float64{0.525, -0.525, 0.175, 1}
	for i, w := range want {
		if math.Abs(res.Adversarial.AtVec(i)-w) > 1e-12 {
			t.Errorf("adversarial[%d] = %v, want %v", i, res.Adversarial.AtVec(i), w)
		}
	}
	wantDelta := []float64{0.01, -0.01, -0.01, 0}
	for i, w := range wantDelta {
		if math.Abs(res.Delta.AtVec(i)-w) > 1e-12 {
			t.Errorf("delta[%d] = %v, want %v", i, res.Delta.AtVec(i), w)
		}
	}
}

func TestBIM_BudgetHoldsWhenStepsOvershoot(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	original := mat.NewVecDense(10, nil)
	truth := mat.NewVecDense(10, nil)
	for i := 0; i < 10; i++ {
		original.SetVec(i, rng.NormFloat64())
		truth.SetVec(i, rng.NormFloat64())
	}

	const eps = 0.003
	res, err := BIM(&identitySolver{}, original, truth, eps, Options{Alpha: 0.5, Steps: 7})
	if err != nil {
		t.Fatalf("BIM: %v", err)
	}
	p := res.Perturbation(original)
	if n := mat.Norm(p, math.Inf(1)); n > eps+1e-15 {
		t.Errorf("||perturbation||_inf = %g, want <= %g", n, eps)
	}
}

func TestBIM_IncreasesReconstructionError(t *testing.T) {
	op, err := sensing.NewOrthonormal(24, 12, rand.New(rand.NewPCG(5, 6)))
	if err != nil {
		t.Fatalf("NewOrthonormal: %v", err)
	}
	rng := rand.New(rand.NewPCG(7, 8))
	truth := mat.NewVecDense(12, nil)
	for _, idx := range rng.Perm(12)[:3] {
		truth.SetVec(idx, 0.5*rng.NormFloat64())
	}
	x, _ := op.Apply(truth)

	cfg := admm.Config{StepSize: 0.2, Penalty: 0.5, Regularization: 2, MaxIter: 20, Tolerance: 1e-300}
	inner, err := admm.New(op, cfg)
	if err != nil {
		t.Fatalf("admm.New: %v", err)
	}
	solver := resettingSolver{inner}

	clean, _, err := solver.Solve(x)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	cleanErr := MSE(clean, truth)

	res, err := BIM(solver, x, truth, 0.05, Options{Alpha: 0.01, Steps: 5})
	if err != nil {
		t.Fatalf("BIM: %v", err)
	}
	attacked, _, err := solver.Solve(res.Adversarial)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if got := MSE(attacked, truth); got <= cleanErr {
		t.Errorf("attacked MSE %g not above clean MSE %g", got, cleanErr)
	}
	if n := mat.Norm(res.Perturbation(x), math.Inf(1)); n > 0.05+1e-12 {
		t.Errorf("perturbation exceeds budget: %g", n)
	}
}

func TestBIM_AdvancesSolverState(t *testing.T) {
	op, _ := sensing.NewOrthonormal(12, 6, rand.New(rand.NewPCG(1, 1)))
	sv, err := admm.New(op, admm.DefaultConfig())
	if err != nil {
		t.Fatalf("admm.New: %v", err)
	}
	x := mat.NewVecDense(12, nil)
	x.SetVec(0, 1)
	truth := mat.NewVecDense(6, nil)

	before := sv.Snapshot()
	if _, err := BIM(sv, x, truth, 0.01, DefaultOptions()); err != nil {
		t.Fatalf("BIM: %v", err)
	}
	if mat.Equal(before.S, sv.Snapshot().S) {
		t.Error("solver state unchanged after attack")
	}
}

func TestMSEGradient(t *testing.T) {
	est := mat.NewVecDense(2, []float64{1, 3})
	target := mat.NewVecDense(2, []float64{0, 1})

	if got := MSE(est, target); got != 2.5 {
		t.Errorf("MSE = %v, want 2.5", got)
	}
	g := MSEGradient(est, target)
	if g.AtVec(0) != 1 || g.AtVec(1) != 2 {
		t.Errorf("MSEGradient = %v, want [1 2]", g.RawVector().Data)
	}
}
