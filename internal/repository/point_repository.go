package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SeriesPrep/internal/domain/models"
	"SeriesPrep/internal/domain/repository"
	pkgkafka "SeriesPrep/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table}
}

func (s *ClickHouseStorage) Store(ctx context.Context, p *models.Point) error {
	// Insert into rt_points_raw schema
	q := fmt.Sprintf("INSERT INTO %s (ts, series, value, source, event_id, seq) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		time.Unix(p.Timestamp, 0),
		p.Series,
		p.Value,
		"feed",
		p.EventID(),
		uint64(p.Timestamp),
	)
	return err
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, points []*models.Point) error {
	if len(points) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	// Chunk size tuned to 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(points); start += chunkSize {
		end := start + chunkSize
		if end > len(points) {
			end = len(points)
		}

		// Build VALUES list
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, p := range points[start:end] {
			if p == nil || p.Series == "" || p.Timestamp == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				time.Unix(p.Timestamp, 0),
				p.Series,
				p.Value,
				"feed",
				p.EventID(),
				uint64(p.Timestamp),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, series, value, source, event_id, seq) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseStorage) Query(ctx context.Context, series string, from, to time.Time, limit int) ([]*models.Point, error) {
	q := fmt.Sprintf("SELECT series, ts, value FROM %s WHERE series = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, series, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []*models.Point
	for rows.Next() {
		var p models.Point
		var ts time.Time
		if err := rows.Scan(&p.Series, &ts, &p.Value); err != nil {
			return nil, err
		}
		p.Timestamp = ts.Unix()
		points = append(points, &p)
	}
	return points, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the underlying ClickHouse client is owned and closed
// by the application lifecycle.
func (s *ClickHouseStorage) Close() error {
	return nil
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish keys the message by series so one series always lands on one
// partition and stays ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, pt *models.Point) error {
	return p.producer.Publish(ctx, p.topic, []byte(pt.Series), pt.Message())
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, points []*models.Point) error {
	if len(points) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(points))
	for i, pt := range points {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(pt.Series),
			Value:   pt.Message(),
			Headers: []pkgkafka.Header{{Key: "trace_id", Value: []byte(pt.EventID())}},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
