package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFromRows(t *testing.T) {
	tt := []struct {
		name     string
		rows     [][]float64
		wantRows int
		wantCols int
		wantErr  bool
	}{
		{name: "single column", rows: [][]float64{{1}, {2}, {3}}, wantRows: 3, wantCols: 1},
		{name: "two columns", rows: [][]float64{{1, 2}, {3, 4}}, wantRows: 2, wantCols: 2},
		{name: "empty", rows: nil, wantRows: 0, wantCols: 0},
		{name: "ragged", rows: [][]float64{{1, 2}, {3}}, wantErr: true},
		{name: "zero width row", rows: [][]float64{{}}, wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			f, err := FromRows(tc.rows)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantRows, f.Rows())
			assert.Equal(t, tc.wantCols, f.Cols())
			assert.False(t, f.HasIndex())
		})
	}
}

func TestNewIndexMismatch(t *testing.T) {
	idx := []time.Time{time.Unix(0, 0)}
	_, err := New(idx, mat.NewDense(2, 1, []float64{1, 2}))
	assert.Error(t, err)
}

func TestFromColumn(t *testing.T) {
	base := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}
	f, err := FromColumn(ts, []float64{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, 3, f.Rows())
	assert.Equal(t, 1, f.Cols())
	assert.True(t, f.HasIndex())
	assert.Equal(t, base.Add(time.Hour), f.Timestamp(1))
	assert.Equal(t, []float64{1, 2, 3}, f.Column(0))
}

func TestCloneIsDeep(t *testing.T) {
	f, err := FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	c := f.Clone()
	c.data.Set(0, 0, 99)

	assert.Equal(t, 1.0, f.At(0, 0))
	assert.Equal(t, 99.0, c.At(0, 0))
}

func TestSelect(t *testing.T) {
	base := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour)}
	f, err := FromColumn(ts, []float64{10, 20, 30, 40})
	require.NoError(t, err)

	tt := []struct {
		name     string
		rows     []int
		wantVals []float64
	}{
		{name: "subset", rows: []int{0, 2}, wantVals: []float64{10, 30}},
		{name: "all", rows: []int{0, 1, 2, 3}, wantVals: []float64{10, 20, 30, 40}},
		{name: "none", rows: nil, wantVals: []float64{}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			sub := f.Select(tc.rows)
			assert.Equal(t, len(tc.rows), sub.Rows())
			assert.Equal(t, 1, sub.Cols())
			assert.Equal(t, tc.wantVals, sub.Column(0))
			for k, i := range tc.rows {
				assert.Equal(t, f.Timestamp(i), sub.Timestamp(k))
			}
		})
	}
}

func TestValuesRowMajor(t *testing.T) {
	f, err := FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, f.Values())
}

func TestEmptyFrame(t *testing.T) {
	f := Empty(3)
	assert.Equal(t, 0, f.Rows())
	assert.Equal(t, 3, f.Cols())
	assert.Empty(t, f.Values())
	assert.Nil(t, f.Data())
}
