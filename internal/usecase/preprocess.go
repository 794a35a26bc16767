package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SeriesPrep/internal/domain/models"
	domrepo "SeriesPrep/internal/domain/repository"
	domsvc "SeriesPrep/internal/domain/service"
	pkgcache "SeriesPrep/pkg/cache"
	"SeriesPrep/pkg/estimator"
	applogger "SeriesPrep/pkg/logger"
	"SeriesPrep/pkg/preprocess"
	"SeriesPrep/pkg/timeseries"
	"SeriesPrep/pkg/util"
)

// ErrNoData reports that the requested window holds no observations.
var ErrNoData = errors.New("no data for series")

// PreprocessUseCase loads a stored series, runs the configured transformer
// chain over it and returns the transformed values. Results are cached by
// request shape for resultTTL.
type PreprocessUseCase struct {
	store   domrepo.SeriesStore
	diag    domsvc.Diagnostics
	cache   pkgcache.Service
	metrics domrepo.Metrics
	logger  *applogger.Logger

	resultTTL     time.Duration
	defaultRows   int
	maxRows       int
	defaultPeriod time.Duration
	acfMaxLag     int
}

func NewPreprocessUseCase(
	store domrepo.SeriesStore,
	diag domsvc.Diagnostics,
	cache pkgcache.Service,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	resultTTL time.Duration,
	defaultRows, maxRows int,
	defaultPeriod time.Duration,
	acfMaxLag int,
) *PreprocessUseCase {
	if resultTTL <= 0 {
		resultTTL = 5 * time.Minute
	}
	if defaultRows <= 0 {
		defaultRows = 600
	}
	if maxRows <= 0 {
		maxRows = 100000
	}
	if acfMaxLag <= 0 {
		acfMaxLag = 200
	}
	return &PreprocessUseCase{
		store:         store,
		diag:          diag,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
		resultTTL:     resultTTL,
		defaultRows:   defaultRows,
		maxRows:       maxRows,
		defaultPeriod: defaultPeriod,
		acfMaxLag:     acfMaxLag,
	}
}

// Run executes one preprocessing run. Parameter errors surface as
// estimator.InvalidParameterError so callers can distinguish them from
// load or transform failures.
func (uc *PreprocessUseCase) Run(ctx context.Context, req models.RunPreprocessRequest) (*models.PreprocessResult, error) {
	if req.Series == "" {
		return nil, fmt.Errorf("series required")
	}
	if req.From > 0 && req.To > 0 && req.From > req.To {
		return nil, fmt.Errorf("from must be <= to")
	}
	rows := req.Rows
	if rows <= 0 {
		rows = uc.defaultRows
	}
	rows = util.ClampInt(rows, 1, uc.maxRows)
	req.MaxLag = util.ClampInt(req.MaxLag, 0, uc.acfMaxLag)

	key := uc.cacheKey(req, rows)
	if uc.cache != nil {
		var cached models.PreprocessResult
		if err := uc.cache.Get(ctx, key, &cached); err == nil {
			cached.Cached = true
			return &cached, nil
		}
	}

	start := time.Now()
	x, err := uc.load(ctx, req, rows)
	if err != nil {
		return nil, err
	}
	if x.Rows() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, req.Series)
	}

	steps, err := uc.buildSteps(req.Resample, req.Stationarize)
	if err != nil {
		return nil, err
	}
	chain := preprocess.NewChain(steps...)
	out, err := chain.FitTransform(x)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", req.Series, err)
	}

	uc.metrics.RecordLatency("preprocess", time.Since(start).Seconds())
	uc.metrics.RecordRowsTransformed("preprocess", out.Rows())

	res := &models.PreprocessResult{
		Series:    req.Series,
		RowsIn:    x.Rows(),
		RowsOut:   out.Rows(),
		Columns:   out.Cols(),
		Values:    out.Values(),
		Params:    resultParams(chain.Params()),
		TookMs:    time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if req.Diagnostics && uc.diag != nil {
		res.Stats = uc.diag.Summarize(ctx, out, req.MaxLag)
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, res, uc.resultTTL); err != nil && uc.logger != nil {
			uc.logger.Warn("preprocess result cache error",
				applogger.String("series", req.Series),
				applogger.Error(err),
			)
		}
	}
	return res, nil
}

// load picks the range query when both bounds are set, latest-N otherwise.
func (uc *PreprocessUseCase) load(ctx context.Context, req models.RunPreprocessRequest, rows int) (*timeseries.Frame, error) {
	if req.From > 0 && req.To > 0 {
		return uc.store.GetRange(ctx, req.Series, time.Unix(req.From, 0).UTC(), time.Unix(req.To, 0).UTC())
	}
	return uc.store.GetLatestN(ctx, req.Series, rows)
}

// buildSteps converts request options into a transformer chain. A nil
// option block skips that step.
func (uc *PreprocessUseCase) buildSteps(r *models.ResampleOptions, s *models.StationarizeOptions) ([]preprocess.Step, error) {
	steps := make([]preprocess.Step, 0, 2)
	if r != nil {
		opts := make([]preprocess.ResamplerOption, 0, 4)
		if r.SamplingType != "" {
			opts = append(opts, preprocess.WithSamplingType(preprocess.SamplingType(r.SamplingType)))
		}
		if r.SamplingPeriod != "" {
			d, err := time.ParseDuration(r.SamplingPeriod)
			if err != nil {
				return nil, &estimator.InvalidParameterError{Param: "sampling period", Value: r.SamplingPeriod}
			}
			opts = append(opts, preprocess.WithSamplingPeriod(d))
		} else if uc.defaultPeriod > 0 {
			opts = append(opts, preprocess.WithSamplingPeriod(uc.defaultPeriod))
		}
		if len(r.SamplingTimes) > 0 {
			times := make([]timeseries.TimeOfDay, 0, len(r.SamplingTimes))
			for _, raw := range r.SamplingTimes {
				td, err := timeseries.ParseTimeOfDay(raw)
				if err != nil {
					return nil, &estimator.InvalidParameterError{Param: "sampling time", Value: raw}
				}
				times = append(times, td)
			}
			opts = append(opts, preprocess.WithSamplingTimes(times...))
		}
		if r.RemoveWeekends != nil {
			opts = append(opts, preprocess.WithRemoveWeekends(*r.RemoveWeekends))
		}
		steps = append(steps, preprocess.Step{Name: "resample", T: preprocess.NewResampler(opts...)})
	}
	if s != nil {
		opts := make([]preprocess.StationarizerOption, 0, 1)
		if s.StationarizationType != "" {
			opts = append(opts, preprocess.WithStationarizationType(preprocess.StationarizationType(s.StationarizationType)))
		}
		steps = append(steps, preprocess.Step{Name: "stationarize", T: preprocess.NewStationarizer(opts...)})
	}
	return steps, nil
}

// cacheKey hashes the request shape. Latest-N runs share a key across time;
// resultTTL bounds their staleness.
func (uc *PreprocessUseCase) cacheKey(req models.RunPreprocessRequest, rows int) string {
	parts := []interface{}{req.Series, req.From, req.To, rows, req.Diagnostics, req.MaxLag}
	if req.Resample != nil {
		rw := "default"
		if req.Resample.RemoveWeekends != nil {
			rw = strconv.FormatBool(*req.Resample.RemoveWeekends)
		}
		parts = append(parts,
			req.Resample.SamplingType,
			req.Resample.SamplingPeriod,
			strings.Join(req.Resample.SamplingTimes, ","),
			rw,
		)
	}
	if req.Stationarize != nil {
		parts = append(parts, req.Stationarize.StationarizationType)
	}
	return pkgcache.GenerateKey("preprocess", pkgcache.HashKey(pkgcache.GenerateKeyWithParams("run", parts...)))
}

// resultParams renders chain parameters in wire-friendly forms.
func resultParams(p estimator.Params) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch t := v.(type) {
		case time.Duration:
			out[k] = t.String()
		case []timeseries.TimeOfDay:
			ss := make([]string, len(t))
			for i, td := range t {
				ss[i] = td.String()
			}
			out[k] = ss
		case preprocess.SamplingType:
			out[k] = string(t)
		case preprocess.StationarizationType:
			out[k] = string(t)
		default:
			out[k] = v
		}
	}
	return out
}
