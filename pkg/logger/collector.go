package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Publisher ships aggregated entries to a log topic. The Kafka producer
// satisfies it directly; the key is unused for log traffic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// CollectionConfig tunes the collector. A flush fires every TimeInterval
// or as soon as CountThreshold distinct lines have accumulated.
type CollectionConfig struct {
	TimeInterval   time.Duration
	CountThreshold int
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one deduplicated log line with its occurrence count.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector batches identical warn/error lines and ships them in bulk,
// so a failure spamming the same message costs one published entry per
// flush instead of one per occurrence.
type LogCollector struct {
	config  *CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		config:  config,
		entries: make(map[string]*AggregatedLogEntry),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.config.CountThreshold {
		c.flushLocked()
	}
}

// entryKey hashes the identifying parts of a line so repeats collapse into
// one entry. Field maps marshal with sorted keys, keeping the key stable.
func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	h := sha256.New()
	for _, part := range []string{level, message, caller} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	if len(fields) > 0 {
		data, _ := json.Marshal(fields)
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *LogCollector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-ctx.Done():
			// final flush before shutdown
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

// flushLocked snapshots and resets the entry map, then publishes the
// snapshot off the lock. Callers must hold mu.
func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 || c.config.Publisher == nil {
		return
	}

	logs := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		logs = append(logs, *e)
	}
	c.entries = make(map[string]*AggregatedLogEntry)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.config.Publisher.Publish(ctx, c.config.Topic, nil, logs); err != nil {
			fmt.Printf("failed to send aggregated logs: %v\n", err)
		}
	}()
}

func (c *LogCollector) Close() {
	c.cancel()
	<-c.done
}
