// Package repository declares the ports the use cases depend on. Concrete
// adapters live under internal/repository and are wired by the DI layer.
package repository

import (
	"context"
	"time"

	"SeriesPrep/internal/domain/models"
)

// PointStream is a live feed of observations. Read returns both channels
// up front; the stream closes them when the connection dies.
type PointStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Point, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher hands observations to a downstream transport.
type Publisher interface {
	Publish(ctx context.Context, p *models.Point) error
	PublishBatch(ctx context.Context, points []*models.Point) error
	Close() error
}

// Storage persists observations and serves range queries.
type Storage interface {
	Store(ctx context.Context, p *models.Point) error
	StoreBatch(ctx context.Context, points []*models.Point) error
	Query(ctx context.Context, series string, from, to time.Time, limit int) ([]*models.Point, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordMessageSent(backend, series string)
	RecordError(kind string)
	RecordLastValue(series string, value float64)
	RecordLatency(op string, seconds float64)
	RecordRowsTransformed(op string, rows int)
}
