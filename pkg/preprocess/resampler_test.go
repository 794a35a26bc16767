package preprocess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"SeriesPrep/pkg/estimator"
	"SeriesPrep/pkg/timeseries"
)

// monday is a Monday, so weekday arithmetic in the fixtures is explicit.
var monday = time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)

func hourlyFrame(t *testing.T, start time.Time, n int) *timeseries.Frame {
	t.Helper()
	ts := make([]time.Time, n)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = start.Add(time.Duration(i) * time.Hour)
		vals[i] = float64(i)
	}
	f, err := timeseries.FromColumn(ts, vals)
	require.NoError(t, err)
	return f
}

func dailyFrame(t *testing.T, start time.Time, n int) *timeseries.Frame {
	t.Helper()
	ts := make([]time.Time, n)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = start.AddDate(0, 0, i)
		vals[i] = float64(i)
	}
	f, err := timeseries.FromColumn(ts, vals)
	require.NoError(t, err)
	return f
}

func TestResamplerFitValidation(t *testing.T) {
	tt := []struct {
		name    string
		opts    []ResamplerOption
		wantErr bool
	}{
		{name: "periodic default", opts: nil},
		{name: "fixed", opts: []ResamplerOption{WithSamplingType(SamplingFixed)}},
		{name: "unknown type", opts: []ResamplerOption{WithSamplingType("mondays")}, wantErr: true},
		{name: "zero period", opts: []ResamplerOption{WithSamplingPeriod(0)}, wantErr: true},
		{name: "negative period", opts: []ResamplerOption{WithSamplingPeriod(-time.Hour)}, wantErr: true},
		{
			name: "bad period ignored for fixed",
			opts: []ResamplerOption{WithSamplingType(SamplingFixed), WithSamplingPeriod(-time.Hour)},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := NewResampler(tc.opts...).Fit(hourlyFrame(t, monday, 4))
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, estimator.IsInvalidParameter(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResamplerTransformBeforeFit(t *testing.T) {
	_, err := NewResampler().Transform(hourlyFrame(t, monday, 4))
	require.Error(t, err)
	assert.True(t, estimator.IsNotFitted(err))
}

func TestResamplerRequiresIndex(t *testing.T) {
	unindexed, err := timeseries.FromRows([][]float64{{1}, {2}})
	require.NoError(t, err)

	r := NewResampler()
	require.NoError(t, r.Fit(unindexed))
	_, err = r.Transform(unindexed)
	assert.Error(t, err)
}

func TestResamplerPeriodic(t *testing.T) {
	// Hourly data resampled onto a 2h grid keeps every other row.
	in := hourlyFrame(t, monday, 8)
	out, err := NewResampler(WithSamplingPeriod(2 * time.Hour)).FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, 4, out.Rows())
	assert.Equal(t, 1, out.Cols())
	assert.Equal(t, []float64{0, 2, 4, 6}, out.Column(0))
	assert.False(t, out.HasIndex())
}

func TestResamplerPeriodicGapsAreDropped(t *testing.T) {
	// Two rows in the first hour, nothing for two hours, one more row.
	// Empty buckets contribute no output row.
	ts := []time.Time{
		monday,
		monday.Add(10 * time.Minute),
		monday.Add(3 * time.Hour),
	}
	in, err := timeseries.FromColumn(ts, []float64{1, 2, 3})
	require.NoError(t, err)

	out, err := NewResampler(WithSamplingPeriod(time.Hour)).FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 3}, out.Column(0))
}

func TestResamplerRemovesWeekends(t *testing.T) {
	// Fourteen consecutive days starting on a Monday span two weekends.
	in := dailyFrame(t, monday, 14)

	out, err := NewResampler(WithSamplingPeriod(24 * time.Hour)).FitTransform(in)
	require.NoError(t, err)
	assert.Equal(t, 10, out.Rows())

	kept, err := NewResampler(
		WithSamplingPeriod(24*time.Hour),
		WithRemoveWeekends(false),
	).FitTransform(in)
	require.NoError(t, err)
	assert.Equal(t, 14, kept.Rows())
}

func TestResamplerFixedTimes(t *testing.T) {
	// One weekday of hourly rows, sampled at two fixed clock times.
	in := hourlyFrame(t, monday, 24)

	out, err := NewResampler(
		WithSamplingType(SamplingFixed),
		WithSamplingTimes(
			timeseries.MustTimeOfDay("06:00:00"),
			timeseries.MustTimeOfDay("18:00:00"),
		),
	).FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Rows())
	assert.Equal(t, []float64{6, 18}, out.Column(0))
}

func TestResamplerFixedDefaultMidnight(t *testing.T) {
	in := hourlyFrame(t, monday, 48)

	out, err := NewResampler(WithSamplingType(SamplingFixed)).FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 24}, out.Column(0))
}

func TestResamplerReshapeToFittedWidth(t *testing.T) {
	// A two-column input folds the sampled first column back into two
	// columns: four samples become a 2x2 matrix.
	ts := make([]time.Time, 4)
	for i := range ts {
		ts[i] = monday.Add(time.Duration(i) * time.Hour)
	}
	in, err := timeseries.New(ts, mat.NewDense(4, 2, []float64{
		10, 1,
		20, 2,
		30, 3,
		40, 4,
	}))
	require.NoError(t, err)

	out, err := NewResampler(WithSamplingPeriod(time.Hour)).FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Rows())
	assert.Equal(t, 2, out.Cols())
	assert.Equal(t, [][]float64{{10, 20}, {30, 40}}, out.Values())
}

func TestResamplerReshapeRemainderFails(t *testing.T) {
	ts := make([]time.Time, 3)
	for i := range ts {
		ts[i] = monday.Add(time.Duration(i) * time.Hour)
	}
	in, err := timeseries.New(ts, mat.NewDense(3, 2, []float64{
		10, 1,
		20, 2,
		30, 3,
	}))
	require.NoError(t, err)

	_, err = NewResampler(WithSamplingPeriod(time.Hour)).FitTransform(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reshape")
}

func TestResamplerEmptyResult(t *testing.T) {
	// A weekend-only frame loses every row but keeps its width.
	saturday := monday.AddDate(0, 0, 5)
	in := dailyFrame(t, saturday, 2)

	out, err := NewResampler(WithSamplingPeriod(24 * time.Hour)).FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, 0, out.Rows())
	assert.Equal(t, 1, out.Cols())
}

func TestResamplerInputUntouched(t *testing.T) {
	in := hourlyFrame(t, monday, 8)
	want := in.Values()

	_, err := NewResampler(WithSamplingPeriod(2 * time.Hour)).FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, want, in.Values())
	assert.Equal(t, 8, in.Rows())
}

func TestResamplerParamsStableAcrossFit(t *testing.T) {
	r := NewResampler(
		WithSamplingType(SamplingFixed),
		WithSamplingTimes(timeseries.MustTimeOfDay("06:00:00")),
		WithRemoveWeekends(false),
	)
	before := r.Params()

	require.NoError(t, r.Fit(hourlyFrame(t, monday, 4)))

	assert.Equal(t, before, r.Params())
	assert.Equal(t, SamplingFixed, before["sampling_type"])
	assert.Equal(t, false, before["remove_weekends"])
}
