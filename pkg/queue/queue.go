// Package queue implements a Redis-list backed job queue with delayed
// retries and a dead letter list. Jobs register by message type; workers
// block on the list and dispatch to the matching job.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Job consumes one message type from the queue. Handle errors trigger the
// retry schedule; returning nil acknowledges the message.
type Job interface {
	// Name identifies the job in logs.
	Name() string
	// Type is the message type this job consumes.
	Type() string
	// Handle processes one payload.
	Handle(ctx context.Context, payload interface{}) error
}

// QueueService enqueues typed messages for background processing.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig sizes the worker pool and the retry schedule. A zero
// QueueSize means unbounded; RetryLimit counts attempts after the first.
type QueueConfig struct {
	Workers    int
	QueueSize  int
	RetryLimit int
	RetryDelay time.Duration
}

// Message is the wire form stored on the Redis list.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"ts"`
}

// ParsePayload coerces a queue payload into *T. Payloads arrive either as
// the original value (same-process enqueue) or as decoded JSON after a
// round trip through Redis.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(p, &out); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &out, nil
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
}
