package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SeriesPrep/internal/domain/models"
	pkgcache "SeriesPrep/pkg/cache"
	"SeriesPrep/pkg/estimator"
	"SeriesPrep/pkg/timeseries"
)

type fakeSeriesStore struct {
	frames map[string][]float64
	gotN   int
}

func (f *fakeSeriesStore) frame(series string) (*timeseries.Frame, error) {
	vals, ok := f.frames[series]
	if !ok {
		return timeseries.Empty(1), nil
	}
	index := make([]time.Time, len(vals))
	base := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := range index {
		index[i] = base.Add(time.Duration(i) * time.Hour)
	}
	return timeseries.FromColumn(index, vals)
}

func (f *fakeSeriesStore) GetRange(ctx context.Context, series string, from, to time.Time) (*timeseries.Frame, error) {
	return f.frame(series)
}

func (f *fakeSeriesStore) GetLatestN(ctx context.Context, series string, n int) (*timeseries.Frame, error) {
	f.gotN = n
	return f.frame(series)
}

func (f *fakeSeriesStore) ListSeries(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(f.frames))
	for k := range f.frames {
		out = append(out, k)
	}
	return out, nil
}

type fakeMetrics struct {
	errors map[string]int
	rows   int
}

func (m *fakeMetrics) RecordMessageSent(backend, series string) {}
func (m *fakeMetrics) RecordError(kind string) {
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}
func (m *fakeMetrics) RecordLastValue(series string, value float64) {}
func (m *fakeMetrics) RecordLatency(op string, seconds float64)     {}
func (m *fakeMetrics) RecordRowsTransformed(op string, rows int)    { m.rows += rows }

func doubling(n int) []float64 {
	out := make([]float64, n)
	v := 1.0
	for i := range out {
		out[i] = v
		v *= 2
	}
	return out
}

func newTestUseCase(store *fakeSeriesStore, cache pkgcache.Service) (*PreprocessUseCase, *fakeMetrics) {
	m := &fakeMetrics{}
	return NewPreprocessUseCase(store, nil, cache, m, nil, time.Minute, 600, 10000, 0, 0), m
}

func boolPtr(b bool) *bool { return &b }

func TestRunResampleThenStationarize(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{"cpu": doubling(8)}}
	uc, m := newTestUseCase(store, nil)

	res, err := uc.Run(context.Background(), models.RunPreprocessRequest{
		Series:       "cpu",
		Resample:     &models.ResampleOptions{SamplingType: "periodic", SamplingPeriod: "2h", RemoveWeekends: boolPtr(false)},
		Stationarize: &models.StationarizeOptions{StationarizationType: "return"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cpu", res.Series)
	assert.Equal(t, 8, res.RowsIn)
	assert.Equal(t, 3, res.RowsOut)
	assert.Equal(t, 1, res.Columns)
	require.Len(t, res.Values, 3)
	for _, row := range res.Values {
		assert.InDelta(t, 0.75, row[0], 1e-12)
	}
	assert.False(t, res.Cached)
	assert.Equal(t, "2h0m0s", res.Params["resample__sampling_period"])
	assert.Equal(t, "return", res.Params["stationarize__stationarization_type"])
	assert.Equal(t, 3, m.rows)
}

func TestRunWithoutStepsPassesThrough(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{"cpu": {1, 2, 3}}}
	uc, _ := newTestUseCase(store, nil)

	res, err := uc.Run(context.Background(), models.RunPreprocessRequest{Series: "cpu"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.RowsIn)
	assert.Equal(t, 3, res.RowsOut)
	assert.Equal(t, [][]float64{{1}, {2}, {3}}, res.Values)
	assert.Empty(t, res.Params)
}

func TestRunUnknownSeries(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{}}
	uc, _ := newTestUseCase(store, nil)

	_, err := uc.Run(context.Background(), models.RunPreprocessRequest{Series: "ghost"})
	require.ErrorIs(t, err, ErrNoData)
}

func TestRunValidation(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{"cpu": {1, 2}}}
	uc, _ := newTestUseCase(store, nil)

	_, err := uc.Run(context.Background(), models.RunPreprocessRequest{})
	require.Error(t, err)

	_, err = uc.Run(context.Background(), models.RunPreprocessRequest{Series: "cpu", From: 20, To: 10})
	require.Error(t, err)
}

func TestRunRejectsBadStepParams(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{"cpu": doubling(4)}}
	uc, _ := newTestUseCase(store, nil)

	_, err := uc.Run(context.Background(), models.RunPreprocessRequest{
		Series:   "cpu",
		Resample: &models.ResampleOptions{SamplingPeriod: "10x"},
	})
	require.Error(t, err)
	assert.True(t, estimator.IsInvalidParameter(err))

	_, err = uc.Run(context.Background(), models.RunPreprocessRequest{
		Series:   "cpu",
		Resample: &models.ResampleOptions{SamplingType: "fixed", SamplingTimes: []string{"25:99:00"}},
	})
	require.Error(t, err)
	assert.True(t, estimator.IsInvalidParameter(err))

	_, err = uc.Run(context.Background(), models.RunPreprocessRequest{
		Series:       "cpu",
		Stationarize: &models.StationarizeOptions{StationarizationType: "difference"},
	})
	require.Error(t, err)
	assert.True(t, estimator.IsInvalidParameter(err))
}

func TestRunDefaultsAndClampsRows(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{"cpu": {1, 2}}}
	uc, _ := newTestUseCase(store, nil)

	_, err := uc.Run(context.Background(), models.RunPreprocessRequest{Series: "cpu"})
	require.NoError(t, err)
	assert.Equal(t, 600, store.gotN)

	_, err = uc.Run(context.Background(), models.RunPreprocessRequest{Series: "cpu", Rows: 99999999})
	require.NoError(t, err)
	assert.Equal(t, 10000, store.gotN)
}

func TestRunCachesResult(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{"cpu": doubling(8)}}
	uc, _ := newTestUseCase(store, pkgcache.NewMemoryCache())

	req := models.RunPreprocessRequest{
		Series:       "cpu",
		Stationarize: &models.StationarizeOptions{StationarizationType: "return"},
	}

	first, err := uc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := uc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.RowsOut, second.RowsOut)

	// a different shape misses
	third, err := uc.Run(context.Background(), models.RunPreprocessRequest{
		Series:       "cpu",
		Stationarize: &models.StationarizeOptions{StationarizationType: "log-return"},
	})
	require.NoError(t, err)
	assert.False(t, third.Cached)
}

func TestRunBatchCollectsPerSeriesErrors(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{"cpu": doubling(8), "mem": doubling(8)}}
	uc, _ := newTestUseCase(store, nil)
	batch := NewBatchPreprocessUseCase(uc)

	res, err := batch.RunBatch(context.Background(), models.BatchPreprocessRequest{
		Series:       []string{"cpu", "mem", "ghost"},
		Stationarize: &models.StationarizeOptions{StationarizationType: "return"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Results, 2)
	require.Contains(t, res.Errors, "ghost")
	assert.Contains(t, res.Errors["ghost"], "no data")

	for _, series := range []string{"cpu", "mem"} {
		r, ok := res.Results[series]
		require.True(t, ok, fmt.Sprintf("missing result for %s", series))
		assert.Equal(t, 7, r.RowsOut)
	}
}

func TestRunBatchRequiresSeries(t *testing.T) {
	uc, _ := newTestUseCase(&fakeSeriesStore{}, nil)
	batch := NewBatchPreprocessUseCase(uc)

	_, err := batch.RunBatch(context.Background(), models.BatchPreprocessRequest{})
	require.Error(t, err)
}

func TestRunDiagnostics(t *testing.T) {
	store := &fakeSeriesStore{frames: map[string][]float64{"cpu": doubling(8)}}
	uc, _ := newTestUseCase(store, nil)
	uc.diag = stubDiag{}

	res, err := uc.Run(context.Background(), models.RunPreprocessRequest{
		Series:      "cpu",
		Diagnostics: true,
		MaxLag:      2,
	})
	require.NoError(t, err)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, 8, res.Stats[0].Count)
}

type stubDiag struct{}

func (stubDiag) Summarize(ctx context.Context, x *timeseries.Frame, maxLag int) []models.ColumnStats {
	out := make([]models.ColumnStats, x.Cols())
	for j := range out {
		out[j] = models.ColumnStats{Column: j, Count: x.Rows()}
	}
	return out
}
