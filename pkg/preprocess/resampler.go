package preprocess

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"SeriesPrep/pkg/estimator"
	"SeriesPrep/pkg/timeseries"
)

// SamplingType selects how the Resampler picks rows from the input grid.
type SamplingType string

const (
	// SamplingPeriodic keeps the first row of every period-sized bucket,
	// counted from the first timestamp of the input.
	SamplingPeriodic SamplingType = "periodic"
	// SamplingFixed keeps rows whose time of day matches one of the
	// configured sampling times.
	SamplingFixed SamplingType = "fixed"
)

// Resampler thins an indexed frame onto a coarser time grid, optionally
// drops weekend rows, and reshapes the first column of what survives into a
// matrix as wide as the fitted input.
type Resampler struct {
	samplingType   SamplingType
	samplingPeriod time.Duration
	samplingTimes  []timeseries.TimeOfDay
	removeWeekends bool

	nFeatures int
	fitted    bool
}

var _ estimator.Transformer = (*Resampler)(nil)

// ResamplerOption configures a Resampler at construction.
type ResamplerOption func(*Resampler)

// WithSamplingType sets the sampling mode. Default is SamplingPeriodic.
func WithSamplingType(t SamplingType) ResamplerOption {
	return func(r *Resampler) { r.samplingType = t }
}

// WithSamplingPeriod sets the bucket width for periodic sampling. Default is
// two hours.
func WithSamplingPeriod(d time.Duration) ResamplerOption {
	return func(r *Resampler) { r.samplingPeriod = d }
}

// WithSamplingTimes sets the wall-clock instants kept by fixed sampling.
// Default is midnight only.
func WithSamplingTimes(times ...timeseries.TimeOfDay) ResamplerOption {
	return func(r *Resampler) {
		r.samplingTimes = append([]timeseries.TimeOfDay(nil), times...)
	}
}

// WithRemoveWeekends controls whether Saturday and Sunday rows are dropped
// before reshaping. Default is true.
func WithRemoveWeekends(remove bool) ResamplerOption {
	return func(r *Resampler) { r.removeWeekends = remove }
}

// NewResampler builds a Resampler with the default configuration, periodic
// two-hour sampling with weekends removed, then applies opts.
func NewResampler(opts ...ResamplerOption) *Resampler {
	r := &Resampler{
		samplingType:   SamplingPeriodic,
		samplingPeriod: 2 * time.Hour,
		samplingTimes:  []timeseries.TimeOfDay{{}},
		removeWeekends: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fit validates the configuration and records the input width used by
// Transform's final reshape. The data itself is not inspected.
func (r *Resampler) Fit(x *timeseries.Frame) error {
	switch r.samplingType {
	case SamplingPeriodic:
		if r.samplingPeriod <= 0 {
			return &estimator.InvalidParameterError{Param: "sampling period", Value: r.samplingPeriod}
		}
	case SamplingFixed:
	default:
		return &estimator.InvalidParameterError{Param: "sampling type", Value: r.samplingType}
	}
	r.nFeatures = x.Cols()
	r.fitted = true
	return nil
}

// Transform resamples x. The input frame must carry a time index with rows
// in time order. The result is a fresh unindexed frame; x is left untouched.
func (r *Resampler) Transform(x *timeseries.Frame) (*timeseries.Frame, error) {
	if !r.fitted {
		return nil, &estimator.NotFittedError{Estimator: "Resampler"}
	}
	if !x.HasIndex() {
		return nil, fmt.Errorf("resample: frame has no time index")
	}

	var keep []int
	switch r.samplingType {
	case SamplingPeriodic:
		keep = r.periodicRows(x)
	case SamplingFixed:
		keep = r.fixedRows(x)
	}
	if r.removeWeekends {
		keep = dropWeekends(x, keep)
	}

	return reshapeColumn(x.Select(keep).Column(0), r.nFeatures)
}

// FitTransform fits the resampler on x and immediately transforms it.
func (r *Resampler) FitTransform(x *timeseries.Frame) (*timeseries.Frame, error) {
	if err := r.Fit(x); err != nil {
		return nil, err
	}
	return r.Transform(x)
}

// Params returns the configured sampling settings. Fit does not change them.
func (r *Resampler) Params() estimator.Params {
	times := make([]timeseries.TimeOfDay, len(r.samplingTimes))
	copy(times, r.samplingTimes)
	return estimator.Params{
		"sampling_type":   r.samplingType,
		"sampling_period": r.samplingPeriod,
		"sampling_times":  times,
		"remove_weekends": r.removeWeekends,
	}
}

// periodicRows keeps the first row of each occupied period. Buckets are
// anchored at the first timestamp, so empty periods simply never produce a
// row. Relies on the index being in time order.
func (r *Resampler) periodicRows(x *timeseries.Frame) []int {
	keep := make([]int, 0, x.Rows())
	if x.Rows() == 0 {
		return keep
	}
	start := x.Timestamp(0)
	last := -1
	for i := 0; i < x.Rows(); i++ {
		bucket := int(x.Timestamp(i).Sub(start) / r.samplingPeriod)
		if bucket != last {
			keep = append(keep, i)
			last = bucket
		}
	}
	return keep
}

func (r *Resampler) fixedRows(x *timeseries.Frame) []int {
	keep := make([]int, 0, x.Rows())
	for i := 0; i < x.Rows(); i++ {
		for _, td := range r.samplingTimes {
			if td.Matches(x.Timestamp(i)) {
				keep = append(keep, i)
				break
			}
		}
	}
	return keep
}

func dropWeekends(x *timeseries.Frame, rows []int) []int {
	keep := rows[:0]
	for _, i := range rows {
		switch x.Timestamp(i).Weekday() {
		case time.Saturday, time.Sunday:
		default:
			keep = append(keep, i)
		}
	}
	return keep
}

// reshapeColumn lays the sampled first column back out as a matrix with
// nFeatures columns. The sample count must divide evenly; a remainder means
// the sampling grid does not line up with the fitted width.
func reshapeColumn(flat []float64, nFeatures int) (*timeseries.Frame, error) {
	if nFeatures <= 0 || len(flat)%nFeatures != 0 {
		return nil, fmt.Errorf("resample: cannot reshape %d sampled values into shape (-1, %d)", len(flat), nFeatures)
	}
	rows := len(flat) / nFeatures
	if rows == 0 {
		return timeseries.Empty(nFeatures), nil
	}
	return timeseries.New(nil, mat.NewDense(rows, nFeatures, append([]float64(nil), flat...)))
}
