package experiment

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Report aggregates a completed sweep.
type Report struct {
	Radii  []float64 `json:"radii"`
	Trials []Trial   `json:"trials"`

	// MeanDistance[i] is the mean reconstruction distance at Radii[i].
	MeanDistance []float64 `json:"mean_distance"`
}

// SummaryRow holds the statistics for one budget.
type SummaryRow struct {
	Eps          float64 `json:"eps"`
	Trials       int     `json:"trials"`
	MeanDistance float64 `json:"mean_distance"`
	StdDistance  float64 `json:"std_distance"`
	MeanCosine   float64 `json:"mean_attacked_cosine"`
}

func newReport(radii []float64, trials []Trial) *Report {
	r := &Report{Radii: radii, Trials: trials}
	r.MeanDistance = make([]float64, len(radii))
	for i, row := range r.Summary() {
		r.MeanDistance[i] = row.MeanDistance
	}
	return r
}

// Summary returns one row per budget, in budget order.
func (r *Report) Summary() []SummaryRow {
	byEps := make([][]Trial, len(r.Radii))
	index := make(map[float64]int, len(r.Radii))
	for i, eps := range r.Radii {
		index[eps] = i
	}
	for _, t := range r.Trials {
		if i, ok := index[t.Eps]; ok {
			byEps[i] = append(byEps[i], t)
		}
	}

	rows := make([]SummaryRow, len(r.Radii))
	for i, eps := range r.Radii {
		rows[i] = summarize(eps, byEps[i])
	}
	return rows
}

func summarize(eps float64, trials []Trial) SummaryRow {
	row := SummaryRow{Eps: eps, Trials: len(trials)}
	if len(trials) == 0 {
		row.MeanDistance = math.NaN()
		row.StdDistance = math.NaN()
		row.MeanCosine = math.NaN()
		return row
	}

	dist := make([]float64, len(trials))
	cos := make([]float64, len(trials))
	for i, t := range trials {
		dist[i] = t.Distance
		cos[i] = t.AttackedCosine
	}
	row.MeanDistance = stat.Mean(dist, nil)
	if len(dist) > 1 {
		row.StdDistance = stat.StdDev(dist, nil)
	}
	row.MeanCosine = stat.Mean(cos, nil)
	return row
}
