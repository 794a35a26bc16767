package preprocess

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"SeriesPrep/pkg/estimator"
	"SeriesPrep/pkg/timeseries"
)

// StationarizationType selects the differencing applied by a Stationarizer.
type StationarizationType string

const (
	// Return produces (x[t] - x[t-1]) / x[t] per column.
	Return StationarizationType = "return"
	// LogReturn produces the natural log of the return.
	LogReturn StationarizationType = "log-return"
)

// Stationarizer turns level series into return series, column by column.
// Zero or negative levels follow IEEE float semantics, so the output may
// contain infinities or NaN rather than an error.
type Stationarizer struct {
	stationarizationType StationarizationType
	fitted               bool
}

var _ estimator.Transformer = (*Stationarizer)(nil)

// StationarizerOption configures a Stationarizer at construction.
type StationarizerOption func(*Stationarizer)

// WithStationarizationType sets the differencing mode. Default is Return.
func WithStationarizationType(t StationarizationType) StationarizerOption {
	return func(s *Stationarizer) { s.stationarizationType = t }
}

// NewStationarizer builds a Stationarizer computing plain returns, then
// applies opts.
func NewStationarizer(opts ...StationarizerOption) *Stationarizer {
	s := &Stationarizer{stationarizationType: Return}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fit validates the configured stationarization type.
func (s *Stationarizer) Fit(x *timeseries.Frame) error {
	switch s.stationarizationType {
	case Return, LogReturn:
	default:
		return &estimator.InvalidParameterError{Param: "stationarization type", Value: s.stationarizationType}
	}
	s.fitted = true
	return nil
}

// Transform differences x into returns. The result has one row fewer than
// the input and no index; inputs with fewer than two rows produce an empty
// frame of the same width.
func (s *Stationarizer) Transform(x *timeseries.Frame) (*timeseries.Frame, error) {
	if !s.fitted {
		return nil, &estimator.NotFittedError{Estimator: "Stationarizer"}
	}

	n, c := x.Rows(), x.Cols()
	if n < 2 {
		return timeseries.Empty(c), nil
	}

	out := mat.NewDense(n-1, c, nil)
	for j := 0; j < c; j++ {
		for t := 1; t < n; t++ {
			cur := x.At(t, j)
			v := (cur - x.At(t-1, j)) / cur
			if s.stationarizationType == LogReturn {
				v = math.Log(v)
			}
			out.Set(t-1, j, v)
		}
	}
	return timeseries.New(nil, out)
}

// FitTransform fits the stationarizer on x and immediately transforms it.
func (s *Stationarizer) FitTransform(x *timeseries.Frame) (*timeseries.Frame, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}

// Params returns the configured stationarization type.
func (s *Stationarizer) Params() estimator.Params {
	return estimator.Params{
		"stationarization_type": s.stationarizationType,
	}
}
