package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes messages from one topic. Handle is called
// serially per partition; a returned error triggers redelivery.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig collects the reader and worker pool settings.
type ConsumerConfig struct {
	Brokers []string
	GroupID string

	// AutoOffsetReset applies only when the group has no committed
	// offset: "earliest" replays the topic, "latest" skips history.
	AutoOffsetReset string

	WorkerCount int
	BufferSize  int

	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string

	MinBytes int
	MaxBytes int
}

// WithConsumerBrokers sets the Kafka broker addresses.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

// WithConsumerGroupID names the group that offsets are tracked under.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerAutoOffsetReset sets where a fresh group starts reading.
func WithConsumerAutoOffsetReset(policy string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if policy != "" {
			c.AutoOffsetReset = policy
		}
	}
}

// WithConsumerWorkers sizes the handler pool.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerBufferSize sizes the fetch-to-worker channel.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerRetry bounds redelivery attempts and the backoff range
// between them.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes messages that exhaust their retries to the
// given topic instead of wedging the partition.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// WithConsumerFetch bounds the byte range of a single fetch.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// Consumer reads registered topics through a bounded worker pool. Handling
// is serialized per (topic, partition) so writes stay in order, and offsets
// are committed only after the handler succeeds or the message lands on the
// DLQ.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer
	hook     ConsumerHook

	inbox    chan fetched
	stopChan chan struct{}
	cancel   context.CancelFunc
	fetchWg  sync.WaitGroup
	workWg   sync.WaitGroup
	stopOnce sync.Once

	mu    sync.Mutex
	locks map[partitionKey]*sync.Mutex
}

type partitionKey struct {
	topic     string
	partition int
}

type fetched struct {
	topic string
	msg   kafka.Message
}

// NewConsumer builds a consumer for the configured brokers. Topics are
// attached through RegisterHandler before Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no brokers configured")
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		hook:     NoopHook{},
		inbox:    make(chan fetched, cfg.BufferSize),
		stopChan: make(chan struct{}),
		locks:    make(map[partitionKey]*sync.Mutex),
	}
	consumerMetricsOnce.Do(consumerMetricsInit)

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 5 * time.Second,
		}
	}
	return c, nil
}

func defaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		GroupID:         "default",
		AutoOffsetReset: "earliest",
		WorkerCount:     1,
		BufferSize:      100,
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        10 << 10,
		MaxBytes:        10 << 20,
	}
}

// RegisterHandler attaches a handler for its topic. The first handler
// registered for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		log.Printf("kafka consumer: duplicate handler for topic %s ignored", topic)
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and launches the worker pool.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: startOffset(c.cfg.AutoOffsetReset),
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWg.Add(1)
		go c.worker()
	}

	for topic, reader := range c.readers {
		c.fetchWg.Add(1)
		go c.fetchLoop(ctx, topic, reader)
	}

	log.Printf("kafka consumer: started workers=%d topics=%d", c.cfg.WorkerCount, len(c.readers))
	return nil
}

// Stop closes the readers, drains the worker pool and flushes the DLQ
// writer. It returns once the workers exit or ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		close(c.stopChan)
		if c.cancel != nil {
			c.cancel()
		}

		// Closing readers unblocks any FetchMessage in flight. The inbox
		// closes only once every fetch loop has exited, so nothing can
		// send on a closed channel.
		var errs []error
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close reader %s: %w", topic, err))
			}
		}
		c.fetchWg.Wait()
		close(c.inbox)

		if err := waitGroupWithin(ctx, &c.workWg); err != nil {
			errs = append(errs, err)
		}

		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close dlq writer: %w", err))
			}
		}

		stopErr = errors.Join(errs...)
		if stopErr == nil {
			log.Println("kafka consumer: stopped")
		}
	})

	return stopErr
}

// waitGroupWithin waits for wg but gives up when ctx expires, leaving
// any stuck workers behind.
func waitGroupWithin(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for workers: %w", ctx.Err())
	}
}

// startOffset maps the reset policy onto kafka-go start offsets. It only
// matters the first time a group sees a partition.
func startOffset(policy string) int64 {
	if policy == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

func (c *Consumer) fetchLoop(ctx context.Context, topic string, reader *kafka.Reader) {
	defer c.fetchWg.Done()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, kafka.ErrGroupClosed) {
				return
			}
			select {
			case <-c.stopChan:
				return
			default:
			}
			log.Printf("kafka consumer: fetch %s: %v", topic, err)
			time.Sleep(200 * time.Millisecond)
			continue
		}

		select {
		case c.inbox <- fetched{topic: topic, msg: msg}:
			observeQueue(topic, len(c.inbox), cap(c.inbox))
		case <-c.stopChan:
			return
		}
	}
}

// worker drains the inbox. Per-message work is wrapped so a handler panic
// cannot take the worker down.
func (c *Consumer) worker() {
	defer c.workWg.Done()

	for f := range c.inbox {
		handler, ok := c.handlers[f.topic]
		if !ok {
			continue
		}
		c.handleOne(f, handler)
	}
}

func (c *Consumer) handleOne(f fetched, handler MessageHandler) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kafka consumer: handler panic on topic %s: %v", f.topic, r)
		}
	}()

	// max in-flight=1 per (topic, partition)
	pl := c.partitionLock(f.topic, f.msg.Partition)
	pl.Lock()
	defer pl.Unlock()

	start := time.Now()
	var err error
	attempts := 0
	for {
		attempts++
		hctx, hmsg, hdata, berr := c.hook.BeforeHandle(context.Background(), f.topic, f.msg, f.msg.Value)
		if berr != nil {
			err = berr
			break
		}

		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, f.topic, hmsg, hdata, err)
		if err == nil || attempts > c.cfg.RetryMax {
			break
		}
		c.hook.OnError(hctx, f.topic, hmsg, hdata, err)
		select {
		case <-time.After(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stopChan:
			return
		}
	}

	if err != nil {
		c.hook.OnError(context.Background(), f.topic, f.msg, f.msg.Value, err)
		log.Printf("kafka consumer: giving up on %s after %d attempts: %v", f.topic, attempts, err)
		c.sendToDLQ(f)
	}

	// Commit on success or after DLQ so a poison message cannot wedge the
	// partition. Without a DLQ the offset stays put and the message is
	// redelivered.
	if err == nil || c.dlq != nil {
		if reader := c.readers[f.topic]; reader != nil {
			_ = c.commitOffset(reader, f.msg)
		}
	}

	observeHandle(f.topic, time.Since(start))
}

func (c *Consumer) sendToDLQ(f fetched) {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Value:   f.msg.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(f.topic)}},
	})
	if err != nil {
		log.Printf("kafka consumer: dlq write for %s: %v", f.topic, err)
	}
}

// commitOffset commits one message's offset, retrying transient failures.
// A lost commit is benign: the message is redelivered and handled again.
func (c *Consumer) commitOffset(reader *kafka.Reader, km kafka.Message) error {
	const attempts = 3
	var err error
	for i := 1; i <= attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, i))
	}
	log.Printf("kafka consumer: commit failed after %d attempts: %v", attempts, err)
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := partitionKey{topic: topic, partition: partition}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// backoff doubles from min toward max and subtracts up to half as jitter,
// spreading retries from workers that fail together.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	if d >= 2 {
		d -= time.Duration(rand.Int63n(int64(d) / 2))
	}
	return d
}

var (
	consumerMetricsOnce sync.Once

	consumerQueueDepth    *prometheus.GaugeVec
	consumerQueueFullness *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func consumerMetricsInit() {
	consumerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seriesprep_kafka_consumer_queue_depth",
			Help: "Messages waiting in the consumer inbox",
		},
		[]string{"topic"},
	)
	consumerQueueFullness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seriesprep_kafka_consumer_queue_fullness",
			Help: "Inbox utilization (len over cap)",
		},
		[]string{"topic"},
	)
	consumerHandleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seriesprep_kafka_consumer_handle_seconds",
			Help:    "Handling time per message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
}

func observeQueue(topic string, depth, capacity int) {
	if capacity == 0 {
		return
	}
	consumerQueueDepth.WithLabelValues(topic).Set(float64(depth))
	consumerQueueFullness.WithLabelValues(topic).Set(float64(depth) / float64(capacity))
}

func observeHandle(topic string, d time.Duration) {
	consumerHandleLatency.WithLabelValues(topic).Observe(d.Seconds())
}
