package diagnostics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SeriesPrep/pkg/timeseries"
)

func frameOf(t *testing.T, values []float64) *timeseries.Frame {
	t.Helper()
	index := make([]time.Time, len(values))
	base := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := range index {
		index[i] = base.Add(time.Duration(i) * time.Hour)
	}
	f, err := timeseries.FromColumn(index, values)
	require.NoError(t, err)
	return f
}

func TestSummarizeMoments(t *testing.T) {
	s := New()
	stats := s.Summarize(context.Background(), frameOf(t, []float64{1, 2, 3, 4}), 0)

	require.Len(t, stats, 1)
	assert.Equal(t, 0, stats[0].Column)
	assert.Equal(t, 4, stats[0].Count)
	assert.InDelta(t, 2.5, stats[0].Mean, 1e-12)
	assert.InDelta(t, 1.0, stats[0].Min, 1e-12)
	assert.InDelta(t, 4.0, stats[0].Max, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), stats[0].Std, 1e-12)
	assert.Nil(t, stats[0].ACF)
}

func TestSummarizeExcludesNonFinite(t *testing.T) {
	s := New()
	stats := s.Summarize(context.Background(), frameOf(t, []float64{1, math.NaN(), 3, math.Inf(1)}), 0)

	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Count)
	assert.InDelta(t, 2.0, stats[0].Mean, 1e-12)
}

func TestSummarizeAllNonFinite(t *testing.T) {
	s := New()
	stats := s.Summarize(context.Background(), frameOf(t, []float64{math.NaN(), math.Inf(-1)}), 3)

	require.Len(t, stats, 1)
	assert.Equal(t, 0, stats[0].Count)
	assert.Zero(t, stats[0].Mean)
	assert.Zero(t, stats[0].Std)
	assert.Nil(t, stats[0].ACF)
}

func TestSummarizeEmptyFrame(t *testing.T) {
	s := New()

	assert.Nil(t, s.Summarize(context.Background(), nil, 3))

	stats := s.Summarize(context.Background(), timeseries.Empty(2), 3)
	require.Len(t, stats, 2)
	assert.Equal(t, 0, stats[0].Count)
	assert.Equal(t, 0, stats[1].Count)
}

func TestACFAlternatingSeries(t *testing.T) {
	// x = +1,-1,+1,-1,... has acf(k) approaching (-1)^k
	xs := make([]float64, 100)
	for i := range xs {
		if i%2 == 0 {
			xs[i] = 1
		} else {
			xs[i] = -1
		}
	}
	got := acf(xs, 2)
	require.Len(t, got, 2)
	assert.InDelta(t, -0.99, got[0], 0.02)
	assert.InDelta(t, 0.98, got[1], 0.02)
}

func TestACFConstantSeriesIsZero(t *testing.T) {
	got := acf([]float64{5, 5, 5, 5}, 2)
	require.Len(t, got, 2)
	assert.Zero(t, got[0])
	assert.Zero(t, got[1])
}

func TestACFLagCappedByLength(t *testing.T) {
	got := acf([]float64{1, 2, 3}, 10)
	assert.Len(t, got, 2)
}
