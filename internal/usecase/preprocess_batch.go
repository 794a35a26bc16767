package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SeriesPrep/internal/domain/models"
)

// BatchPreprocessUseCase runs the same preprocessing over several series
// concurrently.
type BatchPreprocessUseCase struct {
	uc      *PreprocessUseCase
	timeout time.Duration
}

func NewBatchPreprocessUseCase(uc *PreprocessUseCase) *BatchPreprocessUseCase {
	return &BatchPreprocessUseCase{uc: uc, timeout: 30 * time.Second}
}

// RunBatch fans out one Run per series and collects per-series failures
// instead of failing the whole batch.
func (b *BatchPreprocessUseCase) RunBatch(ctx context.Context, req models.BatchPreprocessRequest) (*models.BatchResult, error) {
	if len(req.Series) == 0 {
		return nil, fmt.Errorf("series required")
	}

	// Overall timeout
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type item struct {
		series string
		res    *models.PreprocessResult
		err    error
	}
	ch := make(chan item, len(req.Series))
	var wg sync.WaitGroup

	for _, s := range req.Series {
		wg.Add(1)
		go func(series string) {
			defer wg.Done()
			res, err := b.uc.Run(ctx, models.RunPreprocessRequest{
				Series:       series,
				From:         req.From,
				To:           req.To,
				Rows:         req.Rows,
				Resample:     req.Resample,
				Stationarize: req.Stationarize,
				Diagnostics:  req.Diagnostics,
				MaxLag:       req.MaxLag,
			})
			ch <- item{series, res, err}
		}(s)
	}

	go func() { wg.Wait(); close(ch) }()

	out := &models.BatchResult{
		Results: make(map[string]*models.PreprocessResult, len(req.Series)),
		Errors:  map[string]string{},
	}
	for it := range ch {
		if it.err != nil {
			out.Errors[it.series] = it.err.Error()
			continue
		}
		out.Results[it.series] = it.res
	}

	if len(out.Errors) == 0 {
		out.Errors = nil
	}
	return out, nil
}
