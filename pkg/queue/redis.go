package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"SeriesPrep/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// QueueMode selects which halves of the queue this instance runs.
type QueueMode int

const (
	// ModeProducerConsumer runs workers and accepts enqueues.
	ModeProducerConsumer QueueMode = iota
	// ModeProducerOnly accepts enqueues; registration and workers are disabled.
	ModeProducerOnly
	// ModeConsumerOnly runs workers for messages enqueued elsewhere.
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

const retrySweepEvery = 5 * time.Second

// RedisQueue is a Redis-list backed job queue. Workers block on BRPop; a
// failed message is parked in a sorted set keyed by its next attempt time
// and swept back onto the list when due. Messages that exhaust their
// retries land on a dead letter list for inspection.
type RedisQueue struct {
	logger *logger.Logger
	config QueueConfig
	client *redis.Client
	mode   QueueMode

	queueKey string
	retryKey string
	dlqKey   string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the key prefix for the message, retry and dead letter
// keys. Separate deployments sharing one Redis must not share a prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.queueKey = prefix + ":messages"
		r.retryKey = prefix + ":retry"
		r.dlqKey = prefix + ":dlq"
	}
}

// NewRedisQueue creates a queue on an existing Redis client. The client is
// borrowed; its owner closes it.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	var cfg QueueConfig
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger: lgr,
		config: cfg,
		client: client,
		mode:   mode,
		jobs:   make(map[string]Job),
		stopCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	WithKeyPrefix("seriesprep:queue")(rq)
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJobs binds each job to its message type. A duplicate type keeps
// the first registration. Producer-only queues skip registration.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration skipped in producer-only mode")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		if _, dup := r.jobs[job.Type()]; dup {
			r.logger.Warn("duplicate job type",
				logger.String("job", job.Name()),
				logger.String("type", job.Type()))
			continue
		}
		r.jobs[job.Type()] = job
		r.logger.Info("job registered",
			logger.String("job", job.Name()),
			logger.String("type", job.Type()))
	}
}

// Start verifies the Redis connection and launches workers unless the
// queue is producer-only.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("queue already running")
	}
	r.running = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode == ModeProducerOnly {
		r.logger.Info("redis publisher ready",
			logger.String("addr", r.client.Options().Addr))
		return nil
	}

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.wg.Add(1)
	go r.retrySweeper()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("mode", r.mode.String()))
	return nil
}

// Stop gracefully stops the queue. In-flight handlers finish before Stop
// returns, bounded by ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	if r.mode != ModeProducerOnly {
		close(r.stopCh)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("queue workers did not drain in time", logger.Error(ctx.Err()))
		return fmt.Errorf("stop queue: %w", ctx.Err())
	}
}

// Enqueue adds a message to the queue. When QueueSize is set, Enqueue
// rejects once that many messages are already pending.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return errors.New("queue not running")
	}
	if r.mode != ModeProducerOnly {
		if _, ok := r.jobs[msgType]; !ok {
			return fmt.Errorf("no job registered for type %q", msgType)
		}
	}
	if r.config.QueueSize > 0 {
		pending, err := r.client.LLen(ctx, r.queueKey).Result()
		if err == nil && pending >= int64(r.config.QueueSize) {
			return fmt.Errorf("queue full: %d pending", pending)
		}
	}

	data, err := json.Marshal(Message{
		ID:        strconv.FormatInt(time.Now().UnixNano(), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey, data).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ctx.Done():
			return
		default:
		}
		if msg, ok := r.pop(); ok {
			r.dispatch(msg)
		}
	}
}

// pop blocks up to a second for the next message.
func (r *RedisQueue) pop() (Message, bool) {
	var msg Message

	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	result, err := r.client.BRPop(ctx, time.Second, r.queueKey).Result()
	if err != nil {
		switch {
		case errors.Is(err, redis.Nil),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, context.Canceled):
		default:
			r.logger.Error("brpop error", logger.Error(err))
			time.Sleep(time.Second)
		}
		return msg, false
	}
	if len(result) < 2 {
		return msg, false
	}

	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("decode queued message", logger.Error(err))
		return msg, false
	}
	return msg, true
}

func (r *RedisQueue) dispatch(msg Message) {
	r.mu.RLock()
	job, exists := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !exists {
		r.logger.Error("no job found",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, normalizePayload(msg.Payload))
	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) {
		r.logger.Warn("message cancelled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return
	}
	r.fail(msg, job, err)
}

// normalizePayload turns a payload decoded into a generic map back into
// raw JSON so jobs can unmarshal it into their own type.
func normalizePayload(payload interface{}) interface{} {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return payload
	}
	data, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return json.RawMessage(data)
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.config.RetryLimit {
		r.logger.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		r.deadLetter(msg)
		return
	}

	msg.Attempts++
	dueAt := time.Now().Add(r.config.RetryDelay)
	data, merr := json.Marshal(msg)
	if merr != nil {
		r.logger.Error("encode retry", logger.Error(merr))
		return
	}
	zerr := r.client.ZAdd(context.Background(), r.retryKey, redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: data,
	}).Err()
	if zerr != nil {
		r.logger.Error("schedule retry", logger.Error(zerr))
		return
	}
	r.logger.Info("scheduled retry",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", dueAt.Format(time.RFC3339)))
}

func (r *RedisQueue) deadLetter(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encode dlq message", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.dlqKey, data).Err(); err != nil {
		r.logger.Error("push dlq message", logger.Error(err))
	}
}

// retrySweeper periodically moves due retries back onto the queue.
func (r *RedisQueue) retrySweeper() {
	defer r.wg.Done()

	ticker := time.NewTicker(retrySweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweepDueRetries()
		}
	}
}

func (r *RedisQueue) sweepDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch due retries", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		// remove and requeue atomically so a second sweeper cannot double it
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey, member)
		pipe.LPush(r.ctx, r.queueKey, member)
		if _, err := pipe.Exec(r.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("requeue retry", logger.Error(err))
		}
	}
}
