// Package admm implements sparse recovery by the Alternating Direction
// Method of Multipliers:
//
//	minimize 0.5·||H·s − x||₂² + λ·||s||₁
//
// Each Solve records the shrinkage activity of its iterations so that the
// unrolled solve can be differentiated with respect to the observation
// (see Gradient).
package admm

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/nvandessel/admm-attack/internal/constants"
	"github.com/nvandessel/admm-attack/internal/sensing"
	"gonum.org/v1/gonum/mat"
)

// Solver recovers a sparse estimate from an observation. A Solver owns its
// state exclusively and is not safe for concurrent use; give each trial
// its own instance.
type Solver struct {
	op     *sensing.Operator
	cfg    Config
	inv    *mat.SymDense // (HᵀH + rho·I)⁻¹, computed once, never written
	logger *slog.Logger

	s, u, v *mat.VecDense
	tape    tape
}

// Option configures a Solver.
type Option func(*Solver)

// WithLogger sets the logger used for construction warnings and solve summaries.
func WithLogger(l *slog.Logger) Option {
	return func(sv *Solver) {
		if l != nil {
			sv.logger = l
		}
	}
}

// New validates cfg and precomputes (HᵀH + rho·I)⁻¹ for op.
func New(op *sensing.Operator, cfg Config, opts ...Option) (*Solver, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: nil sensing operator", ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sv := &Solver{
		op:     op,
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(sv)
	}

	if cfg.Penalty < constants.PenaltyWarnThreshold {
		sv.logger.Warn("penalty close to zero, closed-form step may be ill-conditioned",
			"penalty", cfg.Penalty)
	}

	inv, err := invertGram(op, cfg.Penalty)
	if err != nil {
		return nil, err
	}
	sv.inv = inv
	sv.Reset()
	return sv, nil
}

func invertGram(op *sensing.Operator, penalty float64) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(op.Gram(penalty)); !ok {
		return nil, fmt.Errorf("%w: HᵀH + %g·I is not positive definite", ErrIllConditioned, penalty)
	}
	if c := chol.Cond(); c > constants.MaxConditionNumber {
		return nil, fmt.Errorf("%w: condition number %.3g exceeds %.3g", ErrIllConditioned, c, float64(constants.MaxConditionNumber))
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllConditioned, err)
	}
	return &inv, nil
}

// Reset zeroes the state (s, u, v) and discards the recorded solve.
func (sv *Solver) Reset() {
	n := sv.op.SignalDim()
	sv.s = mat.NewVecDense(n, nil)
	sv.u = mat.NewVecDense(n, nil)
	sv.v = mat.NewVecDense(n, nil)
	sv.tape.reset(n)
}

// Solve runs at most MaxIter ADMM iterations on observation x, continuing
// from the current state (warm start). It returns the final estimate and
// the residuals ||H·s − x||₂² of every iteration that did not meet the
// tolerance. Exhausting the budget is not an error; a trace of length
// MaxIter signals it.
//
// The returned estimate is the solver's current s. Later calls to Solve or
// Reset install new vectors and never write to it.
func (sv *Solver) Solve(x *mat.VecDense) (*mat.VecDense, []float64, error) {
	m, n := sv.op.Dims()
	if x == nil || x.Len() != m {
		got := 0
		if x != nil {
			got = x.Len()
		}
		return nil, nil, fmt.Errorf("%w: observation length %d, want %d", ErrInvalidConfiguration, got, m)
	}

	hx, err := sv.op.ApplyT(x)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	var (
		rho   = sv.cfg.Penalty
		mu    = sv.cfg.StepSize
		beta  = sv.cfg.Threshold()
		h     = sv.op.Matrix()
		s     = mat.VecDenseCopyOf(sv.s)
		u     = mat.VecDenseCopyOf(sv.u)
		v     = mat.VecDenseCopyOf(sv.v)
		sNext = mat.NewVecDense(n, nil)
		uNext = mat.NewVecDense(n, nil)
		vNext = mat.NewVecDense(n, nil)
		rhs   = mat.NewVecDense(n, nil)
		resid = mat.NewVecDense(m, nil)
		trace []float64
	)

	sv.tape.reset(n)
	for k := 0; k < sv.cfg.MaxIter; k++ {
		// right_term = Hᵀx + rho·(v_prev − u_prev)
		rhs.SubVec(v, u)
		rhs.AddScaledVec(hx, rho, rhs)

		// s = (HᵀH + rho·I)⁻¹ · right_term
		sNext.MulVec(sv.inv, rhs)

		// v = shrink(s + u_prev, rho/(2λ))
		sd, ud, vd := sNext.RawVector().Data, u.RawVector().Data, vNext.RawVector().Data
		active := sv.tape.next()
		for i := range vd {
			vd[i], active[i] = shrink(sd[i]+ud[i], beta)
		}

		// u = u_prev + mu·(s − v)
		uNext.SubVec(sNext, vNext)
		uNext.AddScaledVec(u, mu, uNext)

		step := l1Distance(sNext, s)
		s, sNext = sNext, s
		u, uNext = uNext, u
		v, vNext = vNext, v

		if step <= sv.cfg.Tolerance {
			break
		}

		resid.MulVec(h, s)
		resid.SubVec(resid, x)
		trace = append(trace, mat.Dot(resid, resid))
	}

	sv.s, sv.u, sv.v = s, u, v
	sv.logger.Debug("admm solve finished",
		"iterations", sv.tape.iters,
		"converged", len(trace) < sv.cfg.MaxIter,
	)
	return s, trace, nil
}

// Loss evaluates 0.5·||H·s − x||₂² + rho·||s||₁. The L1 term is weighted by
// the penalty rho, matching the landscape figures of the reference
// experiments; see Objective for the λ-weighted form.
func (sv *Solver) Loss(s, x *mat.VecDense) (float64, error) {
	return sv.evaluate(s, x, sv.cfg.Penalty)
}

// Objective evaluates the minimised objective 0.5·||H·s − x||₂² + λ·||s||₁.
func (sv *Solver) Objective(s, x *mat.VecDense) (float64, error) {
	return sv.evaluate(s, x, sv.cfg.Regularization)
}

func (sv *Solver) evaluate(s, x *mat.VecDense, weight float64) (float64, error) {
	hs, err := sv.op.Apply(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if x == nil || x.Len() != hs.Len() {
		return 0, fmt.Errorf("%w: observation length mismatch", ErrInvalidConfiguration)
	}
	hs.SubVec(hs, x)
	return 0.5*mat.Dot(hs, hs) + weight*mat.Norm(s, 1), nil
}

// Config returns the solver's hyperparameters.
func (sv *Solver) Config() Config {
	return sv.cfg
}

// Operator returns the sensing operator.
func (sv *Solver) Operator() *sensing.Operator {
	return sv.op
}

// Iterations reports how many iterations the most recent Solve ran,
// including the converging one. Zero after Reset.
func (sv *Solver) Iterations() int {
	return sv.tape.iters
}

// Shrink writes the soft-threshold sign(x)·max(|x| − beta, 0) of x into dst.
// dst may alias x.
func Shrink(dst, x *mat.VecDense, beta float64) {
	if dst.Len() != x.Len() {
		panic(mat.ErrShape)
	}
	for i := 0; i < x.Len(); i++ {
		y, _ := shrink(x.AtVec(i), beta)
		dst.SetVec(i, y)
	}
}

// shrink reports the soft-threshold of x and whether x lies outside [−beta, beta].
func shrink(x, beta float64) (float64, bool) {
	if a := math.Abs(x) - beta; a > 0 {
		return math.Copysign(a, x), true
	}
	return 0, false
}

func l1Distance(a, b *mat.VecDense) float64 {
	ad, bd := a.RawVector().Data, b.RawVector().Data
	sum := 0.0
	for i := range ad {
		sum += math.Abs(ad[i] - bd[i])
	}
	return sum
}
