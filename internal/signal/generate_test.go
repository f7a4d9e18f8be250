package signal

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/admm-attack/internal/sensing"
	"gonum.org/v1/gonum/mat"
)

func newOperator(t *testing.T) *sensing.Operator {
	t.Helper()
	op, err := sensing.NewOrthonormal(50, 30, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("NewOrthonormal: %v", err)
	}
	return op
}

func TestGenerate_Sparsity(t *testing.T) {
	g := NewGenerator(newOperator(t), 4, rand.New(rand.NewPCG(3, 4)))

	for i := 0; i < 20; i++ {
		s, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if got := len(s.Support()); got != 4 {
			t.Errorf("sample %d: support size %d, want 4", i, got)
		}
		if s.Observation.Len() != 50 {
			t.Errorf("observation length %d, want 50", s.Observation.Len())
		}
	}
}

func TestGenerate_NoiselessObservationMatchesOperator(t *testing.T) {
	op := newOperator(t)
	g := NewGenerator(op, 3, rand.New(rand.NewPCG(5, 6)))
	g.NoiseStd = 0

	s, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want, _ := op.Apply(s.Signal)
	if !mat.EqualApprox(s.Observation, want, 1e-15) {
		t.Error("noiseless observation differs from H·s")
	}
}

func TestGenerate_NoiseLevel(t *testing.T) {
	op := newOperator(t)
	g := NewGenerator(op, 0, rand.New(rand.NewPCG(7, 8)))
	g.NoiseStd = 0.5

	samples, err := g.GenerateN(40)
	if err != nil {
		t.Fatalf("GenerateN: %v", err)
	}
	var sum, count float64
	for _, s := range samples {
		for i := 0; i < s.Observation.Len(); i++ {
			v := s.Observation.AtVec(i)
			sum += v * v
			count++
		}
	}
	if std := math.Sqrt(sum / count); math.Abs(std-0.5) > 0.05 {
		t.Errorf("empirical noise std = %.3f, want ~0.5", std)
	}
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	op := newOperator(t)
	a, _ := NewGenerator(op, 5, rand.New(rand.NewPCG(9, 9))).GenerateN(3)
	b, _ := NewGenerator(op, 5, rand.New(rand.NewPCG(9, 9))).GenerateN(3)

	for i := range a {
		if !mat.Equal(a[i].Signal, b[i].Signal) || !mat.Equal(a[i].Observation, b[i].Observation) {
			t.Errorf("sample %d differs for identical seeds", i)
		}
	}
}

func TestGenerate_Invalid(t *testing.T) {
	op := newOperator(t)
	rng := rand.New(rand.NewPCG(1, 1))
	tests := []struct {
		name string
		gen  *Generator
	}{
		{"nil operator", &Generator{Sparsity: 1, Rand: rng}},
		{"nil rand", &Generator{Op: op, Sparsity: 1}},
		{"sparsity too large", &Generator{Op: op, Sparsity: 31, Rand: rng}},
		{"negative noise", &Generator{Op: op, Sparsity: 1, NoiseStd: -1, Rand: rng}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.gen.Generate(); !errors.Is(err, ErrInvalidGenerator) {
				t.Errorf("Generate() = %v, want ErrInvalidGenerator", err)
			}
		})
	}
}
