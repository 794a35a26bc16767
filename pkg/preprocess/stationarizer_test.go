package preprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SeriesPrep/pkg/estimator"
	"SeriesPrep/pkg/timeseries"
)

func columnFrame(t *testing.T, vals ...float64) *timeseries.Frame {
	t.Helper()
	rows := make([][]float64, len(vals))
	for i, v := range vals {
		rows[i] = []float64{v}
	}
	f, err := timeseries.FromRows(rows)
	require.NoError(t, err)
	return f
}

func TestStationarizerFitValidation(t *testing.T) {
	tt := []struct {
		name    string
		mode    StationarizationType
		wantErr bool
	}{
		{name: "return", mode: Return},
		{name: "log-return", mode: LogReturn},
		{name: "unknown", mode: "difference", wantErr: true},
		{name: "empty", mode: "", wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStationarizer(WithStationarizationType(tc.mode))
			err := s.Fit(columnFrame(t, 1, 2))
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, estimator.IsInvalidParameter(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStationarizerTransformBeforeFit(t *testing.T) {
	_, err := NewStationarizer().Transform(columnFrame(t, 1, 2))
	require.Error(t, err)
	assert.True(t, estimator.IsNotFitted(err))
}

func TestStationarizerReturns(t *testing.T) {
	out, err := NewStationarizer().FitTransform(columnFrame(t, 1, 2, 4))
	require.NoError(t, err)

	assert.Equal(t, 2, out.Rows())
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, out.Column(0), 1e-12)
}

func TestStationarizerLogReturns(t *testing.T) {
	out, err := NewStationarizer(
		WithStationarizationType(LogReturn),
	).FitTransform(columnFrame(t, 1, 2, 4))
	require.NoError(t, err)

	want := math.Log(0.5)
	assert.InDeltaSlice(t, []float64{want, want}, out.Column(0), 1e-12)
}

func TestStationarizerShape(t *testing.T) {
	tt := []struct {
		name     string
		rows     [][]float64
		wantRows int
		wantCols int
	}{
		{name: "column", rows: [][]float64{{1}, {2}, {4}, {8}}, wantRows: 3, wantCols: 1},
		{name: "matrix", rows: [][]float64{{1, 10}, {2, 20}, {4, 40}}, wantRows: 2, wantCols: 2},
		{name: "single row", rows: [][]float64{{1, 10}}, wantRows: 0, wantCols: 2},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			in, err := timeseries.FromRows(tc.rows)
			require.NoError(t, err)

			out, err := NewStationarizer().FitTransform(in)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRows, out.Rows())
			assert.Equal(t, tc.wantCols, out.Cols())
			assert.False(t, out.HasIndex())
		})
	}
}

func TestStationarizerColumnsIndependent(t *testing.T) {
	in, err := timeseries.FromRows([][]float64{
		{1, 100},
		{2, 50},
	})
	require.NoError(t, err)

	out, err := NewStationarizer().FitTransform(in)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, out.At(0, 0), 1e-12)
	assert.InDelta(t, -1.0, out.At(0, 1), 1e-12)
}

func TestStationarizerNonFinitePassThrough(t *testing.T) {
	// A zero level divides the difference by zero; a falling series makes
	// the log-return argument negative. Both surface as IEEE specials.
	out, err := NewStationarizer().FitTransform(columnFrame(t, 1, 0))
	require.NoError(t, err)
	assert.True(t, math.IsInf(out.At(0, 0), -1))

	out, err = NewStationarizer(
		WithStationarizationType(LogReturn),
	).FitTransform(columnFrame(t, 4, 2))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.At(0, 0)))
}

func TestStationarizerInputUntouched(t *testing.T) {
	in := columnFrame(t, 1, 2, 4)
	_, err := NewStationarizer().FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2, 4}, in.Column(0))
}

func TestStationarizerParamsStableAcrossFit(t *testing.T) {
	s := NewStationarizer(WithStationarizationType(LogReturn))
	before := s.Params()

	require.NoError(t, s.Fit(columnFrame(t, 1, 2)))

	assert.Equal(t, before, s.Params())
	assert.Equal(t, LogReturn, before["stationarization_type"])
}
