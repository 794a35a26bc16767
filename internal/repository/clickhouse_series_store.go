package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domrepo "SeriesPrep/internal/domain/repository"
	pkgch "SeriesPrep/pkg/clickhouse"
	applogger "SeriesPrep/pkg/logger"
	"SeriesPrep/pkg/timeseries"
)

const pointsTable = "seriesprep.rt_points_raw"

// CHSeriesStore implements SeriesStore backed by ClickHouse.
type CHSeriesStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSeriesStore(ch *pkgch.Client) *CHSeriesStore {
	return &CHSeriesStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHSeriesStore) SetLogger(l *applogger.Logger) { s.l = l }

var _ domrepo.SeriesStore = (*CHSeriesStore)(nil)

func (s *CHSeriesStore) GetRange(ctx context.Context, series string, from, to time.Time) (*timeseries.Frame, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, value
        FROM %s
        WHERE series = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	q := fmt.Sprintf(qtpl, pointsTable)
	rows, err := s.db.QueryContext(ctx, q, series, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_range query error",
				applogger.String("series", series),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get range: %w", err)
	}
	defer rows.Close()

	index := make([]time.Time, 0, 1024)
	vals := make([]float64, 0, 1024)
	for rows.Next() {
		var ts time.Time
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse get_range scan error",
					applogger.String("series", series),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan point: %w", err)
		}
		// UTC keeps weekday and time-of-day checks location-independent
		index = append(index, ts.UTC())
		vals = append(vals, v)
	}
	if err := rows.Err(); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_range rows error",
				applogger.String("series", series),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse get_range ok",
			applogger.String("series", series),
			applogger.Int("rows", len(vals)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return timeseries.FromColumn(index, vals)
}

func (s *CHSeriesStore) GetLatestN(ctx context.Context, series string, n int) (*timeseries.Frame, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, value
        FROM %s
        WHERE series = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	q := fmt.Sprintf(qtpl, pointsTable)
	rows, err := s.db.QueryContext(ctx, q, series, n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_n query error",
				applogger.String("series", series),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get latest points: %w", err)
	}
	defer rows.Close()

	index := make([]time.Time, 0, n)
	vals := make([]float64, 0, n)
	for rows.Next() {
		var ts time.Time
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse latest_n scan error",
					applogger.String("series", series),
					applogger.Int("limit", n),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan point: %w", err)
		}
		index = append(index, ts.UTC())
		vals = append(vals, v)
	}
	if err := rows.Err(); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_n rows error",
				applogger.String("series", series),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(vals)-1; i < j; i, j = i+1, j-1 {
		index[i], index[j] = index[j], index[i]
		vals[i], vals[j] = vals[j], vals[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse latest_n ok",
			applogger.String("series", series),
			applogger.Int("limit", n),
			applogger.Int("rows", len(vals)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return timeseries.FromColumn(index, vals)
}

func (s *CHSeriesStore) ListSeries(ctx context.Context) ([]string, error) {
	const qtpl = `
        SELECT DISTINCT series
        FROM %s
        ORDER BY series ASC
    `
	q := fmt.Sprintf(qtpl, pointsTable)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse list_series query error", applogger.Error(err))
		}
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 64)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan series name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
