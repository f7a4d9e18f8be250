// Package sensing provides the linear observation model: an immutable
// sensing matrix H mapping sparse signals to observations.
package sensing

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when a vector does not match the operator's shape.
var ErrDimensionMismatch = errors.New("sensing: dimension mismatch")

// ErrEmptyOperator is returned when the sensing matrix has a zero dimension.
var ErrEmptyOperator = errors.New("sensing: empty operator")

// Operator is an immutable sensing matrix H of shape
// (observation_dim × signal_dim). It is safe for concurrent read-only use.
type Operator struct {
	h *mat.Dense
}

// New copies h into a new Operator. Later changes to h are not observed.
func New(h mat.Matrix) (*Operator, error) {
	if h == nil {
		return nil, ErrEmptyOperator
	}
	r, c := h.Dims()
	if r == 0 || c == 0 {
		return nil, ErrEmptyOperator
	}
	return &Operator{h: mat.DenseCopyOf(h)}, nil
}

// NewOrthonormal draws a Gaussian rows×cols matrix from rng and
// orthonormalises it: columns are orthonormal when rows >= cols, rows
// are orthonormal otherwise.
func NewOrthonormal(rows, cols int, rng *rand.Rand) (*Operator, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrEmptyOperator
	}
	if rng == nil {
		return nil, errors.New("sensing: nil random source")
	}

	tall, thin := rows, cols
	if rows < cols {
		tall, thin = cols, rows
	}

	data := make([]float64, tall*thin)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	a := mat.NewDense(tall, thin, data)

	var qr mat.QR
	qr.Factorize(a)
	var q mat.Dense
	qr.QTo(&q)
	basis := mat.DenseCopyOf(q.Slice(0, tall, 0, thin))

	if rows >= cols {
		return &Operator{h: basis}, nil
	}
	return &Operator{h: mat.DenseCopyOf(basis.T())}, nil
}

// Dims returns (observation_dim, signal_dim).
func (o *Operator) Dims() (obs, signal int) {
	return o.h.Dims()
}

// ObservationDim is the number of rows of H.
func (o *Operator) ObservationDim() int {
	r, _ := o.h.Dims()
	return r
}

// SignalDim is the number of columns of H.
func (o *Operator) SignalDim() int {
	_, c := o.h.Dims()
	return c
}

// Matrix returns a read-only view of H.
func (o *Operator) Matrix() mat.Matrix {
	return o.h
}

// Apply returns H·s.
func (o *Operator) Apply(s mat.Vector) (*mat.VecDense, error) {
	if s == nil || s.Len() != o.SignalDim() {
		return nil, fmt.Errorf("%w: signal length %d, want %d", ErrDimensionMismatch, lenOf(s), o.SignalDim())
	}
	out := mat.NewVecDense(o.ObservationDim(), nil)
	out.MulVec(o.h, s)
	return out, nil
}

// ApplyT returns Hᵀ·x.
func (o *Operator) ApplyT(x mat.Vector) (*mat.VecDense, error) {
	if x == nil || x.Len() != o.ObservationDim() {
		return nil, fmt.Errorf("%w: observation length %d, want %d", ErrDimensionMismatch, lenOf(x), o.ObservationDim())
	}
	out := mat.NewVecDense(o.SignalDim(), nil)
	out.MulVec(o.h.T(), x)
	return out, nil
}

// Gram returns HᵀH + shift·I.
func (o *Operator) Gram(shift float64) *mat.SymDense {
	n := o.SignalDim()
	var g mat.SymDense
	g.SymOuterK(1, o.h.T())
	for i := 0; i < n; i++ {
		g.SetSym(i, i, g.At(i, i)+shift)
	}
	return &g
}

func lenOf(v mat.Vector) int {
	if v == nil {
		return 0
	}
	return v.Len()
}
