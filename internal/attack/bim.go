// Package attack searches for observation perturbations that degrade a
// sparse recovery solver, using the Basic Iterative Method: repeated
// sign-gradient ascent steps projected onto an L∞ ball around the original
// observation.
package attack

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/admm-attack/internal/constants"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDifferentiation is returned when the solver cannot provide a
	// gradient with respect to its observation.
	ErrDifferentiation = errors.New("attack: no gradient with respect to the observation")

	// ErrInvalidBudget is returned for negative or non-finite budgets.
	ErrInvalidBudget = errors.New("attack: invalid perturbation budget")

	// ErrInvalidOptions is returned for negative step magnitudes or step counts.
	ErrInvalidOptions = errors.New("attack: invalid options")
)

// Solver reconstructs a sparse estimate from an observation.
type Solver interface {
	Solve(x *mat.VecDense) (*mat.VecDense, []float64, error)
}

// Differentiable is a Solver whose most recent Solve can be
// back-propagated: Gradient maps ∂L/∂estimate to ∂L/∂observation.
type Differentiable interface {
	Solver
	Gradient(seed *mat.VecDense) (*mat.VecDense, error)
}

// Options configures BIM.
type Options struct {
	// Alpha is the magnitude of each sign-gradient step.
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// Steps is the number of inner steps.
	Steps int `json:"steps" yaml:"steps"`
}

// DefaultOptions returns alpha = 0.01 and 5 steps.
func DefaultOptions() Options {
	return Options{
		Alpha: constants.DefaultAttackAlpha,
		Steps: constants.DefaultAttackSteps,
	}
}

// Validate rejects negative or non-finite options.
func (o Options) Validate() error {
	if o.Alpha < 0 || math.IsNaN(o.Alpha) || math.IsInf(o.Alpha, 0) {
		return fmt.Errorf("%w: alpha must be finite and non-negative, got %v", ErrInvalidOptions, o.Alpha)
	}
	if o.Steps < 0 {
		return fmt.Errorf("%w: steps must be non-negative, got %d", ErrInvalidOptions, o.Steps)
	}
	return nil
}

// Result is the outcome of an attack.
type Result struct {
	// Adversarial is the perturbed observation, within eps of the original
	// in every component.
	Adversarial *mat.VecDense

	// Delta is the last unprojected step alpha·sign(gradient).
	Delta *mat.VecDense
}

// Perturbation returns Adversarial − original.
func (r *Result) Perturbation(original *mat.VecDense) *mat.VecDense {
	p := mat.NewVecDense(original.Len(), nil)
	p.SubVec(r.Adversarial, original)
	return p
}

// BIM perturbs original within an L∞ ball of radius eps to maximise the
// mean squared error between the solver's estimate and groundTruth.
//
// Every inner step re-solves at the current adversarial point on the same
// solver, so its state advances; pass a fresh or reset solver if it must
// stay pristine. eps == 0 returns a copy of original without solving.
func BIM(solver Solver, original, groundTruth *mat.VecDense, eps float64, opts Options) (*Result, error) {
	if eps < 0 || math.IsNaN(eps) || math.IsInf(eps, 0) {
		return nil, fmt.Errorf("%w: eps = %v", ErrInvalidBudget, eps)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if original == nil || groundTruth == nil {
		return nil, fmt.Errorf("%w: nil observation or ground truth", ErrInvalidOptions)
	}

	adv := mat.VecDenseCopyOf(original)
	delta := mat.NewVecDense(original.Len(), nil)
	if eps == 0 {
		return &Result{Adversarial: adv, Delta: delta}, nil
	}

	diff, ok := solver.(Differentiable)
	if !ok {
		return nil, fmt.Errorf("%w: solver %T is not differentiable", ErrDifferentiation, solver)
	}

	for step := 0; step < opts.Steps; step++ {
		est, _, err := diff.Solve(adv)
		if err != nil {
			return nil, fmt.Errorf("attack step %d: solve: %w", step, err)
		}
		if est.Len() != groundTruth.Len() {
			return nil, fmt.Errorf("%w: estimate length %d, ground truth length %d",
				ErrInvalidOptions, est.Len(), groundTruth.Len())
		}

		grad, err := diff.Gradient(MSEGradient(est, groundTruth))
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %w", ErrDifferentiation, step, err)
		}
		if grad == nil || grad.Len() != original.Len() {
			return nil, fmt.Errorf("%w: step %d: gradient does not match the observation", ErrDifferentiation, step)
		}

		delta = mat.NewVecDense(original.Len(), nil)
		for i := 0; i < grad.Len(); i++ {
			g := grad.AtVec(i)
			if math.IsNaN(g) || math.IsInf(g, 0) {
				return nil, fmt.Errorf("%w: step %d: non-finite gradient", ErrDifferentiation, step)
			}
			delta.SetVec(i, opts.Alpha*sign(g))
		}

		// Step from a fresh point, then project back into the eps-ball.
		next := mat.NewVecDense(adv.Len(), nil)
		next.AddVec(adv, delta)
		for i := 0; i < next.Len(); i++ {
			o := original.AtVec(i)
			next.SetVec(i, o+clamp(next.AtVec(i)-o, eps))
		}
		adv = next
	}

	return &Result{Adversarial: adv, Delta: delta}, nil
}

// MSE returns mean((a − b)²).
func MSE(a, b *mat.VecDense) float64 {
	d := mat.NewVecDense(a.Len(), nil)
	d.SubVec(a, b)
	return mat.Dot(d, d) / float64(a.Len())
}

// MSEGradient returns ∂MSE(estimate, target)/∂estimate = 2·(estimate − target)/n.
func MSEGradient(estimate, target *mat.VecDense) *mat.VecDense {
	g := mat.NewVecDense(estimate.Len(), nil)
	g.SubVec(estimate, target)
	g.ScaleVec(2/float64(estimate.Len()), g)
	return g
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func clamp(x, eps float64) float64 {
	return math.Max(-eps, math.Min(eps, x))
}
