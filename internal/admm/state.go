package admm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// State is an independent copy of a solver's (s, u, v) triple.
type State struct {
	S *mat.VecDense // primal estimate
	U *mat.VecDense // scaled dual variable
	V *mat.VecDense // auxiliary splitting variable
}

// Clone returns a deep copy of st.
func (st State) Clone() State {
	return State{
		S: mat.VecDenseCopyOf(st.S),
		U: mat.VecDenseCopyOf(st.U),
		V: mat.VecDenseCopyOf(st.V),
	}
}

// Snapshot returns a copy of the current state. The solver never writes to it.
func (sv *Solver) Snapshot() State {
	return State{S: sv.s, U: sv.u, V: sv.v}.Clone()
}

// Restore replaces the solver's state with a copy of st and discards the
// recorded solve.
func (sv *Solver) Restore(st State) error {
	n := sv.op.SignalDim()
	for name, vec := range map[string]*mat.VecDense{"s": st.S, "u": st.U, "v": st.V} {
		if vec == nil || vec.Len() != n {
			return fmt.Errorf("%w: state %s must have length %d", ErrInvalidConfiguration, name, n)
		}
	}
	c := st.Clone()
	sv.s, sv.u, sv.v = c.S, c.U, c.V
	sv.tape.reset(n)
	return nil
}

// Clone returns a solver with the same operator, configuration and state.
// The precomputed inverse is shared: it is immutable after New, so clones
// of one solver may run concurrently with each other.
func (sv *Solver) Clone() *Solver {
	c := &Solver{
		op:     sv.op,
		cfg:    sv.cfg,
		inv:    sv.inv,
		logger: sv.logger,
	}
	st := sv.Snapshot()
	c.s, c.u, c.v = st.S, st.U, st.V
	c.tape.reset(sv.op.SignalDim())
	return c
}
