package signal

import (
	"math/rand/v2"
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestSupportOf(t *testing.T) {
	v := mat.NewVecDense(6, []float64{0, 0.5, -0.05, -0.3, 0.1, 0})
	got := SupportOf(v, 0.1)
	if want := []int{1, 3}; !slices.Equal(got, want) {
		t.Errorf("SupportOf = %v, want %v", got, want)
	}
}

func TestCompareSupport(t *testing.T) {
	tests := []struct {
		name          string
		truth, est    []int
		precision     float64
		recall        float64
		missed, extra []int
	}{
		{"exact", []int{1, 4}, []int{4, 1}, 1, 1, nil, nil},
		{"one missed", []int{1, 4, 7}, []int{1, 4}, 1, 2.0 / 3, []int{7}, nil},
		{"one spurious", []int{2}, []int{2, 9}, 0.5, 1, nil, []int{9}},
		{"empty estimate", []int{3}, nil, 1, 0, []int{3}, nil},
		{"both empty", nil, nil, 1, 1, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CompareSupport(tt.truth, tt.est)
			if r.Precision != tt.precision || r.Recall != tt.recall {
				t.Errorf("precision/recall = %v/%v, want %v/%v", r.Precision, r.Recall, tt.precision, tt.recall)
			}
			if len(r.Missed) != len(tt.missed) || (len(tt.missed) > 0 && !slices.Equal(r.Missed, tt.missed)) {
				t.Errorf("Missed = %v, want %v", r.Missed, tt.missed)
			}
			if len(r.Spurious) != len(tt.extra) || (len(tt.extra) > 0 && !slices.Equal(r.Spurious, tt.extra)) {
				t.Errorf("Spurious = %v, want %v", r.Spurious, tt.extra)
			}
		})
	}
}

func TestCompareSupport_GeneratedSample(t *testing.T) {
	op := newOperator(t)
	s, err := NewGenerator(op, 4, rand.New(rand.NewPCG(3, 4))).Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	r := CompareSupport(s.Support(), SupportOf(s.Signal, 0))
	if r.Precision != 1 || r.Recall != 1 {
		t.Errorf("support of the signal itself scored %+v", r)
	}
}
