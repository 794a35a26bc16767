package timeseries

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Frame is a dense numeric matrix with an optional time index. Rows are
// observations ordered by time, columns are features. A Frame without an
// index is a plain matrix; transforms that need timestamps reject it.
type Frame struct {
	index []time.Time
	data  *mat.Dense
	rows  int
	cols  int
}

// New builds a Frame over data with an optional index. index may be nil for
// an unindexed frame; otherwise its length must equal the number of rows.
func New(index []time.Time, data *mat.Dense) (*Frame, error) {
	if data == nil {
		return nil, fmt.Errorf("frame: nil data")
	}
	r, c := data.Dims()
	if index != nil && len(index) != r {
		return nil, fmt.Errorf("frame: index length %d does not match %d rows", len(index), r)
	}
	return &Frame{index: index, data: data, rows: r, cols: c}, nil
}

// Empty returns a frame with zero rows and the given number of columns.
func Empty(cols int) *Frame {
	return &Frame{cols: cols}
}

// FromRows builds an unindexed frame from row slices. All rows must have the
// same length.
func FromRows(rows [][]float64) (*Frame, error) {
	if len(rows) == 0 {
		return Empty(0), nil
	}
	c := len(rows[0])
	if c == 0 {
		return nil, fmt.Errorf("frame: empty row")
	}
	flat := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("frame: row %d has %d values, want %d", i, len(row), c)
		}
		flat = append(flat, row...)
	}
	return &Frame{data: mat.NewDense(len(rows), c, flat), rows: len(rows), cols: c}, nil
}

// FromColumn builds a single-column frame indexed by ts.
func FromColumn(ts []time.Time, values []float64) (*Frame, error) {
	if len(ts) != len(values) {
		return nil, fmt.Errorf("frame: %d timestamps for %d values", len(ts), len(values))
	}
	if len(values) == 0 {
		return Empty(1), nil
	}
	idx := make([]time.Time, len(ts))
	copy(idx, ts)
	flat := make([]float64, len(values))
	copy(flat, values)
	return &Frame{index: idx, data: mat.NewDense(len(values), 1, flat), rows: len(values), cols: 1}, nil
}

// Rows returns the number of observations.
func (f *Frame) Rows() int { return f.rows }

// Cols returns the number of features.
func (f *Frame) Cols() int { return f.cols }

// At returns the value at row i, column j.
func (f *Frame) At(i, j int) float64 { return f.data.At(i, j) }

// HasIndex reports whether the frame carries a time index.
func (f *Frame) HasIndex() bool { return f.index != nil }

// Timestamp returns the index entry for row i. The frame must be indexed.
func (f *Frame) Timestamp(i int) time.Time { return f.index[i] }

// Column returns a copy of column j as a slice. Empty frames yield an empty
// slice.
func (f *Frame) Column(j int) []float64 {
	out := make([]float64, f.rows)
	for i := 0; i < f.rows; i++ {
		out[i] = f.data.At(i, j)
	}
	return out
}

// Values returns a row-major copy of the frame's data.
func (f *Frame) Values() [][]float64 {
	out := make([][]float64, f.rows)
	for i := 0; i < f.rows; i++ {
		row := make([]float64, f.cols)
		for j := 0; j < f.cols; j++ {
			row[j] = f.data.At(i, j)
		}
		out[i] = row
	}
	return out
}

// Data exposes the underlying matrix. Callers must not mutate it.
func (f *Frame) Data() mat.Matrix {
	if f.data == nil {
		return nil
	}
	return f.data
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{rows: f.rows, cols: f.cols}
	if f.index != nil {
		out.index = make([]time.Time, len(f.index))
		copy(out.index, f.index)
	}
	if f.data != nil {
		out.data = mat.DenseCopyOf(f.data)
	}
	return out
}

// Select returns a new frame holding only the given rows, in the given
// order. The index is carried over when present. Row order follows rows, so
// callers keep time ordering by passing ascending positions.
func (f *Frame) Select(rows []int) *Frame {
	out := &Frame{rows: len(rows), cols: f.cols}
	if len(rows) == 0 {
		return out
	}
	flat := make([]float64, 0, len(rows)*f.cols)
	for _, i := range rows {
		for j := 0; j < f.cols; j++ {
			flat = append(flat, f.data.At(i, j))
		}
	}
	out.data = mat.NewDense(len(rows), f.cols, flat)
	if f.index != nil {
		idx := make([]time.Time, len(rows))
		for k, i := range rows {
			idx[k] = f.index[i]
		}
		out.index = idx
	}
	return out
}
