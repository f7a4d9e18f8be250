package admm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// tape records, for each iteration of the most recent solve, which
// coordinates of s + u_prev fell outside the shrinkage threshold. That set
// is the only value-dependent part of the iteration's Jacobian.
type tape struct {
	n      int
	iters  int
	active []bool // iteration-major, iters*n flags
}

func (t *tape) reset(n int) {
	t.n = n
	t.iters = 0
	t.active = t.active[:0]
}

// next extends the tape by one iteration and returns its flags.
func (t *tape) next() []bool {
	start := len(t.active)
	t.active = append(t.active, make([]bool, t.n)...)
	t.iters++
	return t.active[start : start+t.n]
}

// Gradient back-propagates seed = ∂L/∂s through the iterations of the most
// recent Solve and returns ∂L/∂x for its observation x. The state the solve
// started from is treated as a constant, and the iteration count as fixed.
//
// Per iteration, with A = (HᵀH + rho·I)⁻¹ and D the shrinkage activity mask:
//
//	s_k = A·(Hᵀx + rho·(v_{k-1} − u_{k-1}))
//	v_k = D_k·(s_k + u_{k-1})
//	u_k = u_{k-1} + mu·(s_k − v_k)
func (sv *Solver) Gradient(seed *mat.VecDense) (*mat.VecDense, error) {
	if sv.tape.iters == 0 {
		return nil, ErrNoTape
	}
	n := sv.op.SignalDim()
	if seed == nil || seed.Len() != n {
		return nil, fmt.Errorf("%w: gradient seed length mismatch, want %d", ErrInvalidConfiguration, n)
	}

	var (
		mu   = sv.cfg.StepSize
		rho  = sv.cfg.Penalty
		sBar = mat.VecDenseCopyOf(seed)
		vBar = mat.NewVecDense(n, nil)
		uBar = mat.NewVecDense(n, nil)
		rBar = mat.NewVecDense(n, nil)
		acc  = mat.NewVecDense(n, nil) // Σ_k ∂L/∂right_term_k
		sb   = sBar.RawVector().Data
		vb   = vBar.RawVector().Data
		ub   = uBar.RawVector().Data
		rb   = rBar.RawVector().Data
	)

	for k := sv.tape.iters - 1; k >= 0; k-- {
		active := sv.tape.active[k*n : (k+1)*n]
		for i := 0; i < n; i++ {
			// u_k: ub carries over as the adjoint of u_{k-1}.
			sb[i] += mu * ub[i]
			vb[i] -= mu * ub[i]
			// v_k
			if active[i] {
				sb[i] += vb[i]
				ub[i] += vb[i]
			}
		}

		// s_k; A is symmetric.
		rBar.MulVec(sv.inv, sBar)
		acc.AddVec(acc, rBar)
		for i := 0; i < n; i++ {
			vb[i] = rho * rb[i]
			ub[i] -= rho * rb[i]
			sb[i] = 0
		}
	}

	// right_term depends on x only through Hᵀx.
	grad := mat.NewVecDense(sv.op.ObservationDim(), nil)
	grad.MulVec(sv.op.Matrix(), acc)
	return grad, nil
}
