// Package signal draws synthetic sparse signals and their noisy
// observations. Randomness always comes from a caller-supplied source.
package signal

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/admm-attack/internal/constants"
	"github.com/nvandessel/admm-attack/internal/sensing"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidGenerator is returned when a Generator is misconfigured.
var ErrInvalidGenerator = errors.New("signal: invalid generator")

// Sample is a ground-truth sparse signal and its observation H·s + w.
type Sample struct {
	Signal      *mat.VecDense
	Observation *mat.VecDense
}

// Support returns the indices of the non-zero entries of the signal.
func (s Sample) Support() []int {
	var idx []int
	for i := 0; i < s.Signal.Len(); i++ {
		if s.Signal.AtVec(i) != 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// Generator draws k-sparse signals with Gaussian amplitudes and observes
// them through Op with additive Gaussian noise.
type Generator struct {
	Op        *sensing.Operator
	Sparsity  int
	Amplitude float64
	NoiseStd  float64
	Rand      *rand.Rand
}

// NewGenerator returns a Generator with the reference amplitude and noise level.
func NewGenerator(op *sensing.Operator, sparsity int, rng *rand.Rand) *Generator {
	return &Generator{
		Op:        op,
		Sparsity:  sparsity,
		Amplitude: constants.DefaultAmplitude,
		NoiseStd:  constants.DefaultNoiseStd,
		Rand:      rng,
	}
}

func (g *Generator) validate() error {
	if g.Op == nil {
		return fmt.Errorf("%w: nil operator", ErrInvalidGenerator)
	}
	if g.Rand == nil {
		return fmt.Errorf("%w: nil random source", ErrInvalidGenerator)
	}
	if g.Sparsity < 0 || g.Sparsity > g.Op.SignalDim() {
		return fmt.Errorf("%w: sparsity %d outside [0, %d]", ErrInvalidGenerator, g.Sparsity, g.Op.SignalDim())
	}
	if g.NoiseStd < 0 {
		return fmt.Errorf("%w: negative noise std %v", ErrInvalidGenerator, g.NoiseStd)
	}
	return nil
}

// Generate draws one sample.
func (g *Generator) Generate() (Sample, error) {
	if err := g.validate(); err != nil {
		return Sample{}, err
	}

	n := g.Op.SignalDim()
	s := mat.NewVecDense(n, nil)
	for _, idx := range g.Rand.Perm(n)[:g.Sparsity] {
		s.SetVec(idx, g.Amplitude*g.Rand.NormFloat64())
	}

	x, err := g.Op.Apply(s)
	if err != nil {
		return Sample{}, fmt.Errorf("observing signal: %w", err)
	}
	if g.NoiseStd > 0 {
		for i := 0; i < x.Len(); i++ {
			x.SetVec(i, x.AtVec(i)+g.NoiseStd*g.Rand.NormFloat64())
		}
	}
	return Sample{Signal: s, Observation: x}, nil
}

// GenerateN draws n samples in order.
func (g *Generator) GenerateN(n int) ([]Sample, error) {
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		s, err := g.Generate()
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}
