package preprocess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SeriesPrep/pkg/estimator"
	"SeriesPrep/pkg/timeseries"
)

func TestChainResampleThenStationarize(t *testing.T) {
	// Hourly levels doubling every two hours: the 2h resample keeps
	// [1 4 16 64], whose returns are constant 0.75.
	ts := make([]time.Time, 8)
	vals := make([]float64, 8)
	v := 1.0
	for i := 0; i < 8; i++ {
		ts[i] = monday.Add(time.Duration(i) * time.Hour)
		vals[i] = v
		v *= 2
	}
	in, err := timeseries.FromColumn(ts, vals)
	require.NoError(t, err)

	chain := NewChain(
		Step{Name: "resample", T: NewResampler(WithSamplingPeriod(2 * time.Hour))},
		Step{Name: "stationarize", T: NewStationarizer()},
	)

	out, err := chain.FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Rows())
	assert.InDeltaSlice(t, []float64{0.75, 0.75, 0.75}, out.Column(0), 1e-12)
}

func TestChainTransformBeforeFit(t *testing.T) {
	chain := NewChain(Step{Name: "stationarize", T: NewStationarizer()})
	_, err := chain.Transform(columnFrame(t, 1, 2))
	require.Error(t, err)
	assert.True(t, estimator.IsNotFitted(err))
}

func TestChainFitPropagatesStepErrors(t *testing.T) {
	chain := NewChain(
		Step{Name: "resample", T: NewResampler(WithSamplingType("mondays"))},
		Step{Name: "stationarize", T: NewStationarizer()},
	)

	err := chain.Fit(hourlyFrame(t, monday, 4))
	require.Error(t, err)
	assert.True(t, estimator.IsInvalidParameter(err))
	assert.Contains(t, err.Error(), "step resample")
}

func TestChainParamsNamespaced(t *testing.T) {
	chain := NewChain(
		Step{Name: "resample", T: NewResampler(WithSamplingPeriod(time.Hour))},
		Step{Name: "stationarize", T: NewStationarizer(WithStationarizationType(LogReturn))},
	)

	p := chain.Params()

	assert.Equal(t, time.Hour, p["resample__sampling_period"])
	assert.Equal(t, SamplingPeriodic, p["resample__sampling_type"])
	assert.Equal(t, LogReturn, p["stationarize__stationarization_type"])
}

func TestEmptyChainPassesThrough(t *testing.T) {
	in := columnFrame(t, 1, 2, 3)

	chain := NewChain()
	out, err := chain.FitTransform(in)
	require.NoError(t, err)

	assert.Equal(t, in.Values(), out.Values())
	assert.NotSame(t, in, out)
}

func TestChainNests(t *testing.T) {
	inner := NewChain(Step{Name: "stationarize", T: NewStationarizer()})
	outer := NewChain(Step{Name: "inner", T: inner})

	out, err := outer.FitTransform(columnFrame(t, 1, 2, 4))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, out.Column(0), 1e-12)

	p := outer.Params()
	assert.Equal(t, Return, p["inner__stationarize__stationarization_type"])
}
