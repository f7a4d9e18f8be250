// Package landscape samples the solver loss around reconstruction
// estimates: along the segment between two estimates, and on a plane
// spanned by two directions. It produces numeric grids only.
package landscape

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/admm-attack/internal/admm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidGrid is returned for bad step counts or mismatched inputs.
var ErrInvalidGrid = errors.New("landscape: invalid grid")

// Model is the read-only view of a solver the sampler needs.
type Model interface {
	Snapshot() admm.State
	Loss(s, x *mat.VecDense) (float64, error)
}

// Grid is a sampled loss surface. Loss.At(i, j) is the loss at
// center + Alphas[i]·D1 + Betas[j]·D2.
type Grid struct {
	Alphas []float64
	Betas  []float64
	Loss   *mat.Dense
}

// Directions returns two directions for a plane through a's estimate: the
// first points from a's estimate to b's, the second is random, orthogonal to
// the first and scaled to the same norm. If the estimates coincide the first
// direction is random as well.
func Directions(a, b Model, rng *rand.Rand) (d1, d2 *mat.VecDense, err error) {
	if rng == nil {
		return nil, nil, fmt.Errorf("%w: nil random source", ErrInvalidGrid)
	}
	sa, sb := a.Snapshot().S, b.Snapshot().S
	if sa.Len() != sb.Len() {
		return nil, nil, fmt.Errorf("%w: estimates of length %d and %d", ErrInvalidGrid, sa.Len(), sb.Len())
	}
	n := sa.Len()

	d1 = mat.NewVecDense(n, nil)
	d1.SubVec(sb, sa)
	norm := mat.Norm(d1, 2)
	if norm == 0 {
		d1 = randomVec(n, rng)
		norm = mat.Norm(d1, 2)
	}

	d2 = randomVec(n, rng)
	if n > 1 {
		// Gram-Schmidt against d1.
		d2.AddScaledVec(d2, -mat.Dot(d2, d1)/(norm*norm), d1)
	}
	if n2 := mat.Norm(d2, 2); n2 > 0 {
		d2.ScaleVec(norm/n2, d2)
	}
	return d1, d2, nil
}

// Line returns the loss at steps evenly spaced points on the segment from
// start's estimate to end's estimate, both ends included.
func Line(start, end Model, x *mat.VecDense, steps int) ([]float64, error) {
	if steps < 2 {
		return nil, fmt.Errorf("%w: need at least 2 steps, got %d", ErrInvalidGrid, steps)
	}
	s0, s1 := start.Snapshot().S, end.Snapshot().S
	if s0.Len() != s1.Len() {
		return nil, fmt.Errorf("%w: estimates of length %d and %d", ErrInvalidGrid, s0.Len(), s1.Len())
	}

	ts := make([]float64, steps)
	floats.Span(ts, 0, 1)

	out := make([]float64, steps)
	p := mat.NewVecDense(s0.Len(), nil)
	for i, t := range ts {
		// p = (1 − t)·s0 + t·s1
		p.ScaleVec(1-t, s0)
		p.AddScaledVec(p, t, s1)
		loss, err := start.Loss(p, x)
		if err != nil {
			return nil, fmt.Errorf("loss at t=%g: %w", t, err)
		}
		out[i] = loss
	}
	return out, nil
}

// Plane samples a steps×steps grid of losses over
// center + α·d1 + β·d2 with α, β in [−span, span].
func Plane(center Model, x, d1, d2 *mat.VecDense, steps int, span float64) (*Grid, error) {
	if steps < 2 {
		return nil, fmt.Errorf("%w: need at least 2 steps, got %d", ErrInvalidGrid, steps)
	}
	if !(span > 0) {
		return nil, fmt.Errorf("%w: span must be positive, got %v", ErrInvalidGrid, span)
	}
	if d1 == nil || d2 == nil {
		return nil, fmt.Errorf("%w: nil direction", ErrInvalidGrid)
	}
	c := center.Snapshot().S
	if d1.Len() != c.Len() || d2.Len() != c.Len() {
		return nil, fmt.Errorf("%w: directions do not match estimate length %d", ErrInvalidGrid, c.Len())
	}

	g := &Grid{
		Alphas: make([]float64, steps),
		Betas:  make([]float64, steps),
		Loss:   mat.NewDense(steps, steps, nil),
	}
	floats.Span(g.Alphas, -span, span)
	floats.Span(g.Betas, -span, span)

	row := mat.NewVecDense(c.Len(), nil)
	p := mat.NewVecDense(c.Len(), nil)
	for i, a := range g.Alphas {
		row.AddScaledVec(c, a, d1)
		for j, b := range g.Betas {
			p.AddScaledVec(row, b, d2)
			loss, err := center.Loss(p, x)
			if err != nil {
				return nil, fmt.Errorf("loss at (%g, %g): %w", a, b, err)
			}
			g.Loss.Set(i, j, loss)
		}
	}
	return g, nil
}

func randomVec(n int, rng *rand.Rand) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, rng.NormFloat64())
	}
	return v
}
