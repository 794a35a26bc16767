package repository

import (
	"context"
	"time"

	"SeriesPrep/pkg/timeseries"
)

// SeriesStore provides read-only access to stored observations for preprocessing.
// Frames carry a single value column indexed by observation time, in ascending
// time order.
type SeriesStore interface {
	GetRange(ctx context.Context, series string, from, to time.Time) (*timeseries.Frame, error)
	GetLatestN(ctx context.Context, series string, n int) (*timeseries.Frame, error)
	ListSeries(ctx context.Context) ([]string, error)
}
