package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SeriesPrep/internal/domain/models"
	domrepo "SeriesPrep/internal/domain/repository"
	"SeriesPrep/internal/services/histdata"
	pkgcache "SeriesPrep/pkg/cache"
	"SeriesPrep/pkg/estimator"
	applogger "SeriesPrep/pkg/logger"
	pkgqueue "SeriesPrep/pkg/queue"
	"SeriesPrep/pkg/util"
)

// Queue message types.
const (
	TypePreprocessRun = "preprocess.run"
	TypeBackfillRun   = "backfill.run"
)

const backfillLockTTL = 10 * time.Minute

// JobKey builds the cache key a job status lives under.
func JobKey(id string) string { return pkgcache.GenerateKey("job", id) }

// permanentError reports failures retrying cannot fix.
func permanentError(err error) bool {
	return estimator.IsInvalidParameter(err) || errors.Is(err, ErrNoData)
}

// jobStatusStore shares status bookkeeping between jobs.
type jobStatusStore struct {
	cache  pkgcache.Service
	logger *applogger.Logger
	ttl    time.Duration
}

// status loads the pending record written at enqueue time, or starts a
// fresh one when it expired.
func (s *jobStatusStore) status(ctx context.Context, id, typ string) *models.JobStatus {
	st := &models.JobStatus{ID: id, Type: typ, State: models.JobStatePending, EnqueuedAt: time.Now().UTC()}
	if s.cache != nil {
		var prev models.JobStatus
		if err := s.cache.Get(ctx, JobKey(id), &prev); err == nil && prev.ID == id {
			st = &prev
		}
	}
	return st
}

func (s *jobStatusStore) save(ctx context.Context, st *models.JobStatus) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, JobKey(st.ID), st, s.ttl); err != nil && s.logger != nil {
		s.logger.Warn("job status cache error",
			applogger.String("job_id", st.ID),
			applogger.Error(err),
		)
	}
}

// PreprocessJob runs queued preprocessing requests and records their
// status in the cache.
type PreprocessJob struct {
	jobStatusStore
	uc *PreprocessUseCase
}

func NewPreprocessJob(uc *PreprocessUseCase, cache pkgcache.Service, logger *applogger.Logger, ttl time.Duration) *PreprocessJob {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PreprocessJob{
		jobStatusStore: jobStatusStore{cache: cache, logger: logger, ttl: ttl},
		uc:             uc,
	}
}

func (j *PreprocessJob) Name() string { return "preprocess-run" }
func (j *PreprocessJob) Type() string { return TypePreprocessRun }

func (j *PreprocessJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := pkgqueue.ParsePayload[models.PreprocessJobPayload](payload)
	if err != nil {
		return fmt.Errorf("parse preprocess payload: %w", err)
	}

	st := j.status(ctx, p.JobID, TypePreprocessRun)
	st.State = models.JobStateRunning
	j.save(ctx, st)

	res, err := j.uc.Run(ctx, p.Request)
	st.FinishedAt = time.Now().UTC()
	if err != nil {
		st.State = models.JobStateFailed
		st.Error = err.Error()
		j.save(ctx, st)
		if permanentError(err) {
			// retries cannot fix bad parameters or an empty window
			return nil
		}
		return err
	}

	st.State = models.JobStateDone
	st.Result = res
	j.save(ctx, st)
	return nil
}

var _ pkgqueue.Job = (*PreprocessJob)(nil)

// BackfillJob loads historical observations into storage. A per-series
// lock keeps concurrent backfills of the same series from interleaving.
type BackfillJob struct {
	jobStatusStore
	hist    *histdata.Client
	storage domrepo.Storage
}

func NewBackfillJob(hist *histdata.Client, storage domrepo.Storage, cache pkgcache.Service, logger *applogger.Logger, ttl time.Duration) *BackfillJob {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &BackfillJob{
		jobStatusStore: jobStatusStore{cache: cache, logger: logger, ttl: ttl},
		hist:           hist,
		storage:        storage,
	}
}

func (j *BackfillJob) Name() string { return "backfill-run" }
func (j *BackfillJob) Type() string { return TypeBackfillRun }

func (j *BackfillJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := pkgqueue.ParsePayload[models.BackfillPayload](payload)
	if err != nil {
		return fmt.Errorf("parse backfill payload: %w", err)
	}

	lockKey := pkgcache.GenerateKey("backfill", p.Series)
	if j.cache != nil {
		ok, err := j.cache.TryLock(ctx, lockKey, backfillLockTTL)
		if err == nil && !ok {
			// another worker holds the series; let the queue retry later
			return fmt.Errorf("backfill %s already running", p.Series)
		}
		defer func() {
			if err := j.cache.Unlock(ctx, lockKey); err != nil && j.logger != nil {
				j.logger.Warn("backfill unlock error",
					applogger.String("series", p.Series),
					applogger.Error(err),
				)
			}
		}()
	}

	st := j.status(ctx, p.JobID, TypeBackfillRun)
	st.State = models.JobStateRunning
	j.save(ctx, st)

	// the history API serves whole minutes
	from, to := util.AlignRange(time.Unix(p.From, 0).UTC(), time.Unix(p.To, 0).UTC(), time.Minute)
	points, err := j.hist.FetchRange(ctx, p.Series, from, to)
	if err == nil && len(points) > 0 {
		err = j.storage.StoreBatch(ctx, points)
	}

	st.FinishedAt = time.Now().UTC()
	if err != nil {
		st.State = models.JobStateFailed
		st.Error = err.Error()
		j.save(ctx, st)
		return err
	}

	st.State = models.JobStateDone
	st.Rows = len(points)
	j.save(ctx, st)
	return nil
}

var _ pkgqueue.Job = (*BackfillJob)(nil)
