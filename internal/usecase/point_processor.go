package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"SeriesPrep/internal/domain/models"
	drepo "SeriesPrep/internal/domain/repository"
)

// Backends the processor can route to.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// PointProcessor routes observations to the configured backend. The write
// path is resolved once at construction, so the per-call cost is the write
// itself plus metrics.
type PointProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string

	writeOne  func(context.Context, *models.Point) error
	writeMany func(context.Context, []*models.Point) error
}

// NewPointProcessor picks the write path for the backend. An unknown
// backend leaves the processor inert; Process reports it per call.
func NewPointProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *PointProcessor {
	p := &PointProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
	switch backend {
	case BackendKafka:
		p.writeOne, p.writeMany = pub.Publish, pub.PublishBatch
	case BackendClickHouse:
		p.writeOne, p.writeMany = store.Store, store.StoreBatch
	}
	return p
}

// Process writes one observation through the chosen backend.
func (p *PointProcessor) Process(ctx context.Context, pt *models.Point) error {
	if pt == nil {
		return errors.New("nil point")
	}
	if p.writeOne == nil {
		return fmt.Errorf("no write path for backend %q", p.backend)
	}

	start := time.Now()
	if err := p.writeOne(ctx, pt); err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process point: %w", err)
	}
	p.metrics.RecordMessageSent(p.backend, pt.Series)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch writes a whole slice in one backend call. Points keep their
// order; the per-series counter still advances one by one.
func (p *PointProcessor) ProcessBatch(ctx context.Context, points []*models.Point) error {
	if len(points) == 0 {
		return nil
	}
	if p.writeMany == nil {
		return fmt.Errorf("no write path for backend %q", p.backend)
	}

	start := time.Now()
	if err := p.writeMany(ctx, points); err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}
	for _, pt := range points {
		p.metrics.RecordMessageSent(p.backend, pt.Series)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// Close releases both write paths regardless of which backend was active.
func (p *PointProcessor) Close() {
	if p.pub != nil {
		if err := p.pub.Close(); err != nil {
			log.Printf("point processor: close publisher: %v", err)
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			log.Printf("point processor: close storage: %v", err)
		}
	}
}
