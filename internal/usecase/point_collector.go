package usecase

import (
	"context"

	"SeriesPrep/internal/domain/models"
	drepo "SeriesPrep/internal/domain/repository"
	mid "SeriesPrep/internal/middleware"
)

// PointCollector collects observations from the feed and processes them.
type PointCollector struct {
	stream  drepo.PointStream
	proc    *PointProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewPointCollector creates a new PointCollector instance.
func NewPointCollector(stream drepo.PointStream, proc *PointProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *PointCollector {
	return &PointCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the feed stream is connected.
func (c *PointCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *PointCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	ptCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, ptCh, errCh)
	return nil
}

func (c *PointCollector) consume(ctx context.Context, ptCh <-chan *models.Point, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case pt := <-ptCh:
			if pt == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, pt)
			} else {
				_ = c.proc.Process(ctx, pt)
			}
			c.metrics.RecordLastValue(pt.Series, pt.Value)
		}
	}
}

func (c *PointCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying PointProcessor for lifecycle management.
func (c *PointCollector) Processor() *PointProcessor { return c.proc }

// Shutdown stops pipeline and closes stream.
func (c *PointCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
