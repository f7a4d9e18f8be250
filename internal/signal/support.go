package signal

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"gonum.org/v1/gonum/mat"
)

// Recovery compares an estimated support against the true one.
type Recovery struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Missed    []int   `json:"missed,omitempty"`
	Spurious  []int   `json:"spurious,omitempty"`
}

// SupportOf returns the ascending indices of v whose magnitude exceeds threshold.
func SupportOf(v *mat.VecDense, threshold float64) []int {
	var idx []int
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); x > threshold || x < -threshold {
			idx = append(idx, i)
		}
	}
	return idx
}

// CompareSupport scores estimate against truth. An empty estimate has
// precision 1; an empty truth has recall 1.
func CompareSupport(truth, estimate []int) Recovery {
	t := mapset.NewSet(truth...)
	e := mapset.NewSet(estimate...)
	hit := t.Intersect(e).Cardinality()

	r := Recovery{Precision: 1, Recall: 1}
	if n := e.Cardinality(); n > 0 {
		r.Precision = float64(hit) / float64(n)
	}
	if n := t.Cardinality(); n > 0 {
		r.Recall = float64(hit) / float64(n)
	}
	r.Missed = sorted(t.Difference(e))
	r.Spurious = sorted(e.Difference(t))
	return r
}

func sorted(s mapset.Set[int]) []int {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}
