package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SeriesPrep/internal/domain/models"
	domrepo "SeriesPrep/internal/domain/repository"
	pkgkafka "SeriesPrep/pkg/kafka"
)

// KafkaPointsHandler drains the points topic into ClickHouse. It is the
// consumer half of the kafka backend: the publisher fans points in, this
// handler lands them in storage.
type KafkaPointsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaPointsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaPointsHandler {
	return &KafkaPointsHandler{topic: topic, storage: storage, metrics: metrics}
}

// Topic names the subscription for the consumer registry.
func (h *KafkaPointsHandler) Topic() string { return h.topic }

// Handle decodes one PointMessage and stores it. A decode failure is
// permanent, redelivery cannot fix a malformed payload, so it still
// returns an error and relies on the consumer's DLQ to clear the offset.
func (h *KafkaPointsHandler) Handle(ctx context.Context, payload []byte) error {
	var m models.PointMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode point message: %w", err)
	}
	pt := m.Point()

	// Distance from event time to consumption, across feed, producer
	// and broker.
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(pt.Timestamp, 0)).Seconds())

	start := time.Now()
	if err := h.storage.Store(ctx, pt); err != nil {
		h.metrics.RecordError("consumer_store")
		return fmt.Errorf("store point: %w", err)
	}
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	h.metrics.RecordMessageSent(BackendClickHouse, pt.Series)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaPointsHandler)(nil)
