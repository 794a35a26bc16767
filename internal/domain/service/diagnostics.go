package service

import (
	"context"

	"SeriesPrep/internal/domain/models"
	"SeriesPrep/pkg/timeseries"
)

// Diagnostics summarizes transformed output, column by column. maxLag bounds
// the autocorrelation depth; zero disables it.
type Diagnostics interface {
	Summarize(ctx context.Context, x *timeseries.Frame, maxLag int) []models.ColumnStats
}
