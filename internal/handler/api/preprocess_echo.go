package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	models "SeriesPrep/internal/domain/models"
	icache "SeriesPrep/internal/service/cache"
	"SeriesPrep/internal/service/metrics"
	"SeriesPrep/internal/service/ratelimit"
	"SeriesPrep/internal/usecase"
	pkgcache "SeriesPrep/pkg/cache"
	"SeriesPrep/pkg/estimator"
	xhttp "SeriesPrep/pkg/http"
	xlogger "SeriesPrep/pkg/logger"
	pkgqueue "SeriesPrep/pkg/queue"
	"SeriesPrep/pkg/timeseries"
	xutil "SeriesPrep/pkg/util"
)

func init() {
	_ = xhttp.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	_ = xhttp.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		_, err := timeseries.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	_ = xhttp.RegisterValidation("flextime", func(fl validator.FieldLevel) bool {
		_, ok := xutil.ParseTime(fl.Field().String())
		return ok
	})
}

// HealthChecker reports whether a downstream dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// PreprocessEchoHandler implements Echo-based HTTP handlers following Clean Architecture.
type PreprocessEchoHandler struct {
	logger *xlogger.Logger
	pre    *usecase.PreprocessUseCase
	batch  *usecase.BatchPreprocessUseCase
	series *usecase.SeriesUseCase

	queue   pkgqueue.QueueService
	jobs    pkgcache.Service
	points  icache.BytesCache
	storage HealthChecker
	rl      *ratelimit.Limiter
	jobTTL  time.Duration
	httpTTL time.Duration
}

func NewPreprocessEchoHandler(logger *xlogger.Logger, pre *usecase.PreprocessUseCase, batch *usecase.BatchPreprocessUseCase, series *usecase.SeriesUseCase) *PreprocessEchoHandler {
	metrics.Register()
	return &PreprocessEchoHandler{
		logger:  logger,
		pre:     pre,
		batch:   batch,
		series:  series,
		rl:      ratelimit.New(),
		jobTTL:  time.Hour,
		httpTTL: 30 * time.Second,
	}
}

// SetQueue wires the async job queue. Job endpoints report 503 until it is set.
func (h *PreprocessEchoHandler) SetQueue(q pkgqueue.QueueService) { h.queue = q }

// SetJobStatusCache wires the store job statuses are written to and read from.
func (h *PreprocessEchoHandler) SetJobStatusCache(c pkgcache.Service, ttl time.Duration) {
	h.jobs = c
	if ttl > 0 {
		h.jobTTL = ttl
	}
}

// SetPointsCache enables short-lived response caching on point reads.
func (h *PreprocessEchoHandler) SetPointsCache(c icache.BytesCache, ttl time.Duration) {
	h.points = c
	if ttl > 0 {
		h.httpTTL = ttl
	}
}

// SetStorageHealth wires the dependency the health endpoint pings.
func (h *PreprocessEchoHandler) SetStorageHealth(hc HealthChecker) { h.storage = hc }

func (h *PreprocessEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.POST("/preprocess/run", h.Run)
	g.POST("/preprocess/batch", h.Batch)
	g.POST("/preprocess/resample", h.Resample)
	g.POST("/preprocess/stationarize", h.Stationarize)
	g.GET("/series", h.ListSeries)
	g.GET("/series/:series/points", h.Points)
	g.POST("/jobs/preprocess", h.EnqueuePreprocess)
	g.POST("/jobs/backfill", h.EnqueueBackfill)
	g.GET("/jobs/:id", h.JobStatus)
}

func (h *PreprocessEchoHandler) Run(c echo.Context) error {
	const endpoint = "preprocess_run"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 5, 2) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	req := &models.RunPreprocessRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.pre.Run(c.Request().Context(), *req)
	if err != nil {
		return h.respondUseCaseError(c, endpoint, "preprocess run", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PreprocessEchoHandler) Batch(c echo.Context) error {
	const endpoint = "preprocess_batch"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 2, 1) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	req := &models.BatchPreprocessRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.batch.RunBatch(c.Request().Context(), *req)
	if err != nil {
		return h.respondUseCaseError(c, endpoint, "preprocess batch", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Resample runs the resampling step alone.
func (h *PreprocessEchoHandler) Resample(c echo.Context) error {
	const endpoint = "resample"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 5, 2) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	req := &models.ResampleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	run := models.RunPreprocessRequest{
		Series:   req.Series,
		From:     req.From,
		To:       req.To,
		Rows:     req.Rows,
		Resample: &req.ResampleOptions,
	}
	res, err := h.pre.Run(c.Request().Context(), run)
	if err != nil {
		return h.respondUseCaseError(c, endpoint, "resample", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Stationarize runs the stationarization step alone.
func (h *PreprocessEchoHandler) Stationarize(c echo.Context) error {
	const endpoint = "stationarize"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 5, 2) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	req := &models.StationarizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	run := models.RunPreprocessRequest{
		Series:       req.Series,
		From:         req.From,
		To:           req.To,
		Rows:         req.Rows,
		Stationarize: &req.StationarizeOptions,
	}
	res, err := h.pre.Run(c.Request().Context(), run)
	if err != nil {
		return h.respondUseCaseError(c, endpoint, "stationarize", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PreprocessEchoHandler) ListSeries(c echo.Context) error {
	const endpoint = "series_list"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 10, 5) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	names, err := h.series.ListSeries(c.Request().Context())
	if err != nil {
		return h.respondUseCaseError(c, endpoint, "list series", err)
	}
	return xhttp.ListResponse(c, names, int64(len(names)))
}

func (h *PreprocessEchoHandler) Points(c echo.Context) error {
	const endpoint = "points"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 10, 5) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	series := c.Param("series")
	req := &models.PointsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from := xutil.ParseTimeDefault(req.From, time.Time{}).UTC()
	to := xutil.ParseTimeDefault(req.To, time.Time{}).UTC()
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{
			{Code: "ERR_RANGE", Field: "from", Message: "from must be before to"},
		})
	}

	key := pkgcache.GenerateKeyWithParams("points", series, from.Unix(), to.Unix(), req.Limit)
	if h.points != nil {
		if b, ok, err := h.points.GetBytes(key); err == nil && ok {
			metrics.APICacheHits.WithLabelValues(endpoint).Inc()
			c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}

	params := usecase.GetPointsParams{Series: series, From: from, To: to, Limit: req.Limit}
	res, err := h.series.GetPoints(c.Request().Context(), params)
	if err != nil {
		return h.respondUseCaseError(c, endpoint, "get points", err)
	}

	if h.points != nil {
		if b, err := json.Marshal(res); err == nil {
			if err := h.points.SetBytes(key, b, h.httpTTL); err != nil && h.logger != nil {
				h.logger.Warn("points cache error", xlogger.Error(err))
			}
		}
	}
	return xhttp.SuccessResponse(c, res)
}

// EnqueuePreprocess accepts a preprocessing job and returns 201 with its pending status.
func (h *PreprocessEchoHandler) EnqueuePreprocess(c echo.Context) error {
	const endpoint = "jobs_preprocess"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 5, 2) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}
	if h.queue == nil || h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_QUEUE_DISABLED", "job queue is not configured", http.StatusServiceUnavailable))
	}

	req := &models.RunPreprocessRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	st := h.newJobStatus(c, usecase.TypePreprocessRun)
	payload := models.PreprocessJobPayload{JobID: st.ID, Request: *req}
	if err := h.queue.PublishMessage(c.Request().Context(), usecase.TypePreprocessRun, payload); err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		if h.logger != nil {
			h.logger.Error("enqueue preprocess error", xlogger.String("job_id", st.ID), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, st)
}

// EnqueueBackfill accepts a history backfill job and returns 201 with its pending status.
func (h *PreprocessEchoHandler) EnqueueBackfill(c echo.Context) error {
	const endpoint = "jobs_backfill"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 2, 1) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}
	if h.queue == nil || h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_QUEUE_DISABLED", "job queue is not configured", http.StatusServiceUnavailable))
	}

	req := &models.BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	st := h.newJobStatus(c, usecase.TypeBackfillRun)
	payload := models.BackfillPayload{JobID: st.ID, Series: req.Series, From: req.From, To: req.To}
	if err := h.queue.PublishMessage(c.Request().Context(), usecase.TypeBackfillRun, payload); err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		if h.logger != nil {
			h.logger.Error("enqueue backfill error", xlogger.String("job_id", st.ID), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, st)
}

func (h *PreprocessEchoHandler) JobStatus(c echo.Context) error {
	const endpoint = "jobs_status"
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 20, 10) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_QUEUE_DISABLED", "job queue is not configured", http.StatusServiceUnavailable))
	}

	id := c.Param("id")
	var st models.JobStatus
	if err := h.jobs.Get(c.Request().Context(), usecase.JobKey(id), &st); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", id))
		}
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		if h.logger != nil {
			h.logger.Error("job status read error", xlogger.String("job_id", id), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *PreprocessEchoHandler) Health(c echo.Context) error {
	out := map[string]string{"status": "ok"}
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.storage.Health(ctx); err != nil {
			out["status"] = "degraded"
			out["storage"] = "unreachable"
			return c.JSON(http.StatusServiceUnavailable, out)
		}
		out["storage"] = "ok"
	}
	return xhttp.SuccessResponse(c, out)
}

// newJobStatus writes the pending record so polling works before a worker picks the job up.
func (h *PreprocessEchoHandler) newJobStatus(c echo.Context, jobType string) *models.JobStatus {
	st := &models.JobStatus{
		ID:         strconv.FormatInt(time.Now().UnixNano(), 10),
		Type:       jobType,
		State:      models.JobStatePending,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.jobs.Set(c.Request().Context(), usecase.JobKey(st.ID), st, h.jobTTL); err != nil && h.logger != nil {
		h.logger.Warn("job status cache error", xlogger.String("job_id", st.ID), xlogger.Error(err))
	}
	return st
}

// respondUseCaseError maps usecase failures onto HTTP statuses. Parameter and
// data errors are the caller's fault; anything else is logged and counted.
func (h *PreprocessEchoHandler) respondUseCaseError(c echo.Context, endpoint, op string, err error) error {
	if estimator.IsInvalidParameter(err) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	if errors.Is(err, usecase.ErrNoData) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
	if h.logger != nil {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, err)
}
