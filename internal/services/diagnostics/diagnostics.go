package diagnostics

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"SeriesPrep/internal/domain/models"
	domservice "SeriesPrep/internal/domain/service"
	"SeriesPrep/pkg/timeseries"
)

// Service computes per-column summary statistics over transformed output.
type Service struct{}

func New() *Service { return &Service{} }

var _ domservice.Diagnostics = (*Service)(nil)

// Summarize reports count, moments, range and autocorrelations for each
// column. Non-finite values are excluded; a column with no finite values
// reports Count 0 and zero moments.
func (s *Service) Summarize(ctx context.Context, x *timeseries.Frame, maxLag int) []models.ColumnStats {
	if x == nil || x.Cols() == 0 {
		return nil
	}
	out := make([]models.ColumnStats, 0, x.Cols())
	for j := 0; j < x.Cols(); j++ {
		col := x.Column(j)
		finite := make([]float64, 0, len(col))
		for _, v := range col {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}
		cs := models.ColumnStats{Column: j, Count: len(finite)}
		if len(finite) > 0 {
			cs.Mean = stat.Mean(finite, nil)
			cs.Min = floats.Min(finite)
			cs.Max = floats.Max(finite)
			if len(finite) > 1 {
				cs.Std = stat.StdDev(finite, nil)
			}
			if maxLag > 0 {
				cs.ACF = acf(finite, maxLag)
			}
		}
		out = append(out, cs)
	}
	return out
}

// acf computes sample autocorrelations for lags 1..maxLag, sharing the
// lag-0 autocovariance as the denominator. A constant series has zero
// autocovariance and reports zeros.
func acf(xs []float64, maxLag int) []float64 {
	n := len(xs)
	if n < 2 {
		return nil
	}
	if maxLag > n-1 {
		maxLag = n - 1
	}
	mean := stat.Mean(xs, nil)
	var c0 float64
	for _, v := range xs {
		d := v - mean
		c0 += d * d
	}
	out := make([]float64, maxLag)
	if c0 == 0 {
		return out
	}
	for lag := 1; lag <= maxLag; lag++ {
		var ck float64
		for t := lag; t < n; t++ {
			ck += (xs[t] - mean) * (xs[t-lag] - mean)
		}
		out[lag-1] = ck / c0
	}
	return out
}
