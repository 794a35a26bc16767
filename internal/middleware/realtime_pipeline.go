// Package middleware sits between the live feed and the point processor.
// The pipeline validates observations, throttles per series, applies an
// optional transform and buffers when downstream is unavailable.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SeriesPrep/internal/domain/models"
	domrepo "SeriesPrep/internal/domain/repository"
)

const (
	defaultMaxRPS  = 20
	defaultBufSize = 1000

	minFlushBackoff = 50 * time.Millisecond
	maxFlushBackoff = 2 * time.Second
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, p *models.Point) error
}

// RealtimePipeline guards the path from the feed to the backend. Process
// expects a single caller; throttle state is not synchronized.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	throttle *seriesThrottle

	// transform, when set, rewrites each point before the throttle.
	transform func(*models.Point) *models.Point

	bufCh  chan *models.Point
	stopCh chan struct{}

	mu      sync.Mutex
	started bool
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps accepted points per second per series. Zero disables
// the throttle.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) { p.maxRPS = n }
}

// WithBufferSize sets how many points are held while downstream is down.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform installs a hook that rewrites points before the throttle.
// The rewritten point is validated again.
func WithTransform(fn func(*models.Point) *models.Point) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:    proc,
		metrics: metrics,
		maxRPS:  defaultMaxRPS,
		bufSize: defaultBufSize,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Point, p.bufSize)
	p.throttle = newSeriesThrottle(p.maxRPS)
	return p
}

// Start launches background flushing of buffered points.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.flushLoop(ctx)
}

// Stop halts the background flusher. Buffered points are abandoned.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Process validates, throttles and forwards one point. A downstream
// failure parks the point in the buffer for the flusher to retry.
func (p *RealtimePipeline) Process(ctx context.Context, pt *models.Point) error {
	start := time.Now()
	if err := validatePoint(pt); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		pt = p.transform(pt)
		if err := validatePoint(pt); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.throttle.allow(pt.Series, start) {
		// dropped by design, not an error for the caller
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, pt); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.park(pt)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// park buffers a point without blocking. Full buffer means the point is
// lost; the drop is counted.
func (p *RealtimePipeline) park(pt *models.Point) {
	select {
	case p.bufCh <- pt:
		p.metrics.RecordLastValue("pipeline_buffer_depth", float64(len(p.bufCh)))
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

// flushLoop drains the buffer, backing off while downstream stays broken.
func (p *RealtimePipeline) flushLoop(ctx context.Context) {
	backoff := minFlushBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case pt := <-p.bufCh:
			if pt == nil {
				continue
			}
			if err := p.proc.Process(ctx, pt); err == nil {
				backoff = minFlushBackoff
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			if backoff < maxFlushBackoff {
				backoff *= 2
			}
			time.Sleep(backoff)
			// requeue if space; drop otherwise
			select {
			case p.bufCh <- pt:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

func validatePoint(pt *models.Point) error {
	switch {
	case pt == nil:
		return errors.New("nil point")
	case pt.Series == "":
		return errors.New("empty series")
	case pt.Timestamp <= 0:
		return errors.New("non-positive timestamp")
	case math.IsNaN(pt.Value) || math.IsInf(pt.Value, 0):
		return errors.New("value not finite")
	}
	return nil
}

// seriesThrottle enforces a minimum spacing between accepted points of
// the same series. Not safe for concurrent use.
type seriesThrottle struct {
	interval time.Duration
	last     map[string]time.Time
}

func newSeriesThrottle(rps int) *seriesThrottle {
	if rps <= 0 {
		return &seriesThrottle{}
	}
	return &seriesThrottle{
		interval: time.Second / time.Duration(rps),
		last:     make(map[string]time.Time),
	}
}

func (t *seriesThrottle) allow(series string, now time.Time) bool {
	if t.interval <= 0 {
		return true
	}
	if last, ok := t.last[series]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[series] = now
	return true
}
