// Package export writes sweep results and loss landscapes as Arrow IPC
// files for external plotting tools.
package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/admm-attack/internal/experiment"
	"github.com/nvandessel/admm-attack/internal/landscape"
	"gonum.org/v1/gonum/floats"
)

// TrialsSchema is the schema of WriteTrialsArrow output.
var TrialsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "signal", Type: arrow.PrimitiveTypes.Int64},
	{Name: "eps", Type: arrow.PrimitiveTypes.Float64},
	{Name: "distance", Type: arrow.PrimitiveTypes.Float64},
	{Name: "clean_iters", Type: arrow.PrimitiveTypes.Int64},
	{Name: "attacked_iters", Type: arrow.PrimitiveTypes.Int64},
	{Name: "clean_cosine", Type: arrow.PrimitiveTypes.Float64},
	{Name: "attacked_cosine", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// SummarySchema is the schema of WriteSummaryArrow output.
var SummarySchema = arrow.NewSchema([]arrow.Field{
	{Name: "eps", Type: arrow.PrimitiveTypes.Float64},
	{Name: "trials", Type: arrow.PrimitiveTypes.Int64},
	{Name: "mean_distance", Type: arrow.PrimitiveTypes.Float64},
	{Name: "std_distance", Type: arrow.PrimitiveTypes.Float64},
	{Name: "mean_attacked_cosine", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// GridSchema is the schema of WriteGridArrow output, one row per grid point.
var GridSchema = arrow.NewSchema([]arrow.Field{
	{Name: "alpha", Type: arrow.PrimitiveTypes.Float64},
	{Name: "beta", Type: arrow.PrimitiveTypes.Float64},
	{Name: "loss", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// LineSchema is the schema of WriteLineArrow output.
var LineSchema = arrow.NewSchema([]arrow.Field{
	{Name: "t", Type: arrow.PrimitiveTypes.Float64},
	{Name: "loss", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteTrialsArrow writes one row per trial.
func WriteTrialsArrow(w io.WriteSeeker, trials []experiment.Trial) error {
	return writeRecord(w, TrialsSchema, func(b *array.RecordBuilder) {
		signal := b.Field(0).(*array.Int64Builder)
		eps := b.Field(1).(*array.Float64Builder)
		dist := b.Field(2).(*array.Float64Builder)
		cleanIters := b.Field(3).(*array.Int64Builder)
		attackedIters := b.Field(4).(*array.Int64Builder)
		cleanCos := b.Field(5).(*array.Float64Builder)
		attackedCos := b.Field(6).(*array.Float64Builder)
		for _, t := range trials {
			signal.Append(int64(t.Signal))
			eps.Append(t.Eps)
			dist.Append(t.Distance)
			cleanIters.Append(int64(t.CleanIters))
			attackedIters.Append(int64(t.AttackedIters))
			cleanCos.Append(t.CleanCosine)
			attackedCos.Append(t.AttackedCosine)
		}
	})
}

// WriteSummaryArrow writes one row per budget.
func WriteSummaryArrow(w io.WriteSeeker, rows []experiment.SummaryRow) error {
	return writeRecord(w, SummarySchema, func(b *array.RecordBuilder) {
		eps := b.Field(0).(*array.Float64Builder)
		n := b.Field(1).(*array.Int64Builder)
		mean := b.Field(2).(*array.Float64Builder)
		std := b.Field(3).(*array.Float64Builder)
		cos := b.Field(4).(*array.Float64Builder)
		for _, r := range rows {
			eps.Append(r.Eps)
			n.Append(int64(r.Trials))
			mean.Append(r.MeanDistance)
			std.Append(r.StdDistance)
			cos.Append(r.MeanCosine)
		}
	})
}

// WriteGridArrow writes a landscape grid in long form, alpha-major.
func WriteGridArrow(w io.WriteSeeker, g *landscape.Grid) error {
	if g == nil || g.Loss == nil {
		return fmt.Errorf("export: nil grid")
	}
	r, c := g.Loss.Dims()
	if r != len(g.Alphas) || c != len(g.Betas) {
		return fmt.Errorf("export: grid of %d×%d losses for %d alphas and %d betas", r, c, len(g.Alphas), len(g.Betas))
	}
	return writeRecord(w, GridSchema, func(b *array.RecordBuilder) {
		alpha := b.Field(0).(*array.Float64Builder)
		beta := b.Field(1).(*array.Float64Builder)
		loss := b.Field(2).(*array.Float64Builder)
		alpha.Reserve(r * c)
		beta.Reserve(r * c)
		loss.Reserve(r * c)
		for i, a := range g.Alphas {
			for j, bt := range g.Betas {
				alpha.UnsafeAppend(a)
				beta.UnsafeAppend(bt)
				loss.UnsafeAppend(g.Loss.At(i, j))
			}
		}
	})
}

// WriteLineArrow writes losses sampled at evenly spaced t in [0, 1], as
// returned by landscape.Line.
func WriteLineArrow(w io.WriteSeeker, losses []float64) error {
	if len(losses) < 2 {
		return fmt.Errorf("export: need at least 2 line samples, got %d", len(losses))
	}
	ts := make([]float64, len(losses))
	floats.Span(ts, 0, 1)
	return writeRecord(w, LineSchema, func(b *array.RecordBuilder) {
		b.Field(0).(*array.Float64Builder).AppendValues(ts, nil)
		b.Field(1).(*array.Float64Builder).AppendValues(losses, nil)
	})
}

// writeRecord builds a single record with fill and writes it as an Arrow
// IPC file. The file footer is written by seeking back, so w must be
// seekable.
func writeRecord(w io.WriteSeeker, schema *arrow.Schema, fill func(*array.RecordBuilder)) error {
	mem := memory.NewGoAllocator()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	fill(b)

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("export: creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("export: writing record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("export: closing arrow writer: %w", err)
	}
	return nil
}
