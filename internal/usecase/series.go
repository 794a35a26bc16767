package usecase

import (
	"context"
	"fmt"
	"time"

	"SeriesPrep/internal/domain/models"
	domrepo "SeriesPrep/internal/domain/repository"
)

// SeriesUseCase provides business logic for browsing stored observations.
type SeriesUseCase struct {
	storage domrepo.Storage
	store   domrepo.SeriesStore
}

func NewSeriesUseCase(storage domrepo.Storage, store domrepo.SeriesStore) *SeriesUseCase {
	return &SeriesUseCase{storage: storage, store: store}
}

type GetPointsParams struct {
	Series string
	From   time.Time
	To     time.Time
	Limit  int
}

type GetPointsResult struct {
	Series string          `json:"series"`
	From   time.Time       `json:"from"`
	To     time.Time       `json:"to"`
	Count  int             `json:"count"`
	Points []*models.Point `json:"points"`
}

// GetPoints returns stored observations, newest first.
func (uc *SeriesUseCase) GetPoints(ctx context.Context, p GetPointsParams) (*GetPointsResult, error) {
	if p.Series == "" {
		return nil, fmt.Errorf("series required")
	}
	if p.To.IsZero() {
		p.To = time.Now()
	}
	if p.From.IsZero() {
		// DateTime columns cannot hold the zero time
		p.From = time.Unix(0, 0).UTC()
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 600
	}
	if p.Limit > 10000 {
		p.Limit = 10000
	}

	points, err := uc.storage.Query(ctx, p.Series, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get points: %w", err)
	}

	return &GetPointsResult{
		Series: p.Series,
		From:   p.From,
		To:     p.To,
		Count:  len(points),
		Points: points,
	}, nil
}

// ListSeries returns the names of all stored series.
func (uc *SeriesUseCase) ListSeries(ctx context.Context) ([]string, error) {
	names, err := uc.store.ListSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return names, nil
}
