package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// ProducerOption configures a Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig collects the writer settings.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression selects the message codec: gzip, snappy, lz4 or
// zstd. Unknown names fall back to gzip.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = compression }
}

// WithRequiredAcks sets the acknowledgement level; -1 waits for all
// in-sync replicas.
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

// WithMaxAttempts bounds writer retries.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) { c.MaxAttempts = n }
}

// WithBatchSize caps messages per batch.
func WithBatchSize(size int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchSize = size }
}

// WithBatchTimeout sets how long a partial batch may linger before it
// is flushed.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.BatchTimeout = timeout }
}

// WithBatchBytes caps the byte size of a batch.
func WithBatchBytes(bytes int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchBytes = bytes }
}

// WithTimeouts sets the writer's write and read timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithAsync makes writes fire-and-forget.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithHashByKey routes messages with the same key to the same
// partition, keeping per-series ordering.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}

// Header is a Kafka message header.
type Header = kafka.Header

// Message is one entry of a PublishBatch call. Value is encoded the
// same way Publish encodes it.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers []Header
}

// Producer wraps a kafka-go writer with value encoding and publish
// metrics.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

// NewProducer builds a producer for the configured brokers.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}

	producerMetricsOnce.Do(producerMetricsInit)
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     balancer,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compressionByName(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   int64(cfg.BatchBytes),
			BatchTimeout: cfg.BatchTimeout,
			Async:        cfg.Async,
		},
		comp: cfg.Compression,
	}, nil
}

// Publish sends one message to the topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	payload, err := encodePayload(value)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
		Time:  start,
	})
	p.observe(topic, int64(len(payload)), 1, start, err)
	return err
}

// PublishBatch sends messages to the topic in one writer call.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	batch := make([]kafka.Message, len(messages))
	var totalBytes int64
	for i, m := range messages {
		payload, err := encodePayload(m.Value)
		if err != nil {
			return err
		}
		batch[i] = kafka.Message{
			Topic:   topic,
			Key:     m.Key,
			Value:   payload,
			Headers: m.Headers,
			Time:    start,
		}
		totalBytes += int64(len(payload))
	}

	err := p.writer.WriteMessages(ctx, batch...)
	p.observe(topic, totalBytes, len(messages), start, err)
	return err
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *Producer) observe(topic string, bytes int64, count int, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		producerErrors.WithLabelValues(topic).Inc()
	}
	producerMessages.WithLabelValues(topic, p.comp, result).Add(float64(count))
	producerBytes.WithLabelValues(topic, p.comp).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
}

// encodePayload serializes a publish value. Byte slices and strings
// pass through untouched, everything else is JSON.
func encodePayload(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return data, nil
	}
}

func compressionByName(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerMetricsOnce sync.Once

	producerMessages *prometheus.CounterVec
	producerErrors   *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec
)

func producerMetricsInit() {
	producerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesprep_kafka_producer_messages_total",
			Help: "Total messages published to Kafka",
		},
		[]string{"topic", "compression", "result"},
	)
	producerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesprep_kafka_producer_errors_total",
			Help: "Total producer errors",
		},
		[]string{"topic"},
	)
	producerBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesprep_kafka_producer_bytes_total",
			Help: "Total payload bytes published",
		},
		[]string{"topic", "compression"},
	)
	producerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seriesprep_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
}
