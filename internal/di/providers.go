package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"SeriesPrep/internal/domain/repository"
	domsvc "SeriesPrep/internal/domain/service"
	"SeriesPrep/internal/handler/api"
	mid "SeriesPrep/internal/middleware"
	internalrepo "SeriesPrep/internal/repository"
	icache "SeriesPrep/internal/service/cache"
	"SeriesPrep/internal/service/feed"
	"SeriesPrep/internal/services/diagnostics"
	"SeriesPrep/internal/services/histdata"
	"SeriesPrep/internal/usecase"
	pkgcache "SeriesPrep/pkg/cache"
	pkgch "SeriesPrep/pkg/clickhouse"
	"SeriesPrep/pkg/config"
	xhttp "SeriesPrep/pkg/http"
	pkgkafka "SeriesPrep/pkg/kafka"
	applogger "SeriesPrep/pkg/logger"
	"SeriesPrep/pkg/metrics"
	pkgqueue "SeriesPrep/pkg/queue"
	"SeriesPrep/pkg/server"

	segkafka "github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lgr, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr, nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS seriesprep",
		"CREATE TABLE IF NOT EXISTS seriesprep.rt_points_raw (ts DateTime, series String, value Float64, source String, event_id String, seq UInt64) ENGINE=MergeTree ORDER BY (series, ts)",
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects to Redis when enabled. A nil return with nil
// error means the deployment runs without Redis.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, port := splitRedisAddr(cfg.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPoolSize(cfg.Redis.PoolSize),
		pkgcache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis, or falls back to
// memory-only when Redis is off.
func ProvideCache(cfg *config.Config, rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MemorySize))
	}
	return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(cfg.Cache.MemorySize))
}

// ProvidePointStorage creates ClickHouse storage repository.
func ProvidePointStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database+".rt_points_raw")
}

// ProvidePointPublisher creates Kafka publisher repository.
func ProvidePointPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideSeriesStore creates the ClickHouse read model for stored series.
func ProvideSeriesStore(chClient *pkgch.Client, lgr *applogger.Logger) repository.SeriesStore {
	st := internalrepo.NewCHSeriesStore(chClient)
	st.SetLogger(lgr)
	return st
}

// ProvideFeedStream creates the WebSocket point stream.
func ProvideFeedStream(cfg *config.Config) repository.PointStream {
	return feed.New(feed.Config{
		APIKey:         cfg.Feed.APIKey,
		WebSocketURL:   cfg.Feed.WebSocketURL,
		Series:         cfg.Feed.Series,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingInterval:   cfg.Feed.PingInterval,
	})
}

// ProvideDiagnostics creates the column statistics service.
func ProvideDiagnostics() domsvc.Diagnostics {
	return diagnostics.New()
}

// ProvideHistClient creates the historical data HTTP client.
func ProvideHistClient(cfg *config.Config) *histdata.Client {
	return histdata.New(cfg)
}

// ProvideKafkaPointsHandler registers handler for the points topic.
func ProvideKafkaPointsHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaPointsHandler {
	return usecase.NewKafkaPointsHandler(cfg.Kafka.Topic, store, metrics)
}

// ProvidePointProcessor creates point processor use case.
func ProvidePointProcessor(
	pub repository.Publisher,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.PointProcessor {
	return usecase.NewPointProcessor(pub, store, metrics, cfg.Backend.Type)
}

// ProvidePointCollector creates point collector use case.
func ProvidePointCollector(
	stream repository.PointStream,
	processor *usecase.PointProcessor,
	metrics repository.Metrics,
) *usecase.PointCollector {
	// Build middleware pipeline between WebSocket and the backend
	pipe := mid.NewRealtimePipeline(processor, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewPointCollector(stream, processor, metrics, pipe)
}

// ProvidePreprocessUseCase creates the preprocessing use case.
func ProvidePreprocessUseCase(
	store repository.SeriesStore,
	diag domsvc.Diagnostics,
	cache pkgcache.Service,
	m repository.Metrics,
	lgr *applogger.Logger,
	cfg *config.Config,
) *usecase.PreprocessUseCase {
	return usecase.NewPreprocessUseCase(store, diag, cache, m, lgr,
		cfg.Cache.ResultTTL,
		cfg.Preprocess.DefaultRows,
		cfg.Preprocess.MaxRows,
		cfg.Preprocess.DefaultPeriod,
		cfg.Preprocess.ACFMaxLag,
	)
}

// ProvideBatchUseCase creates the batch preprocessing use case.
func ProvideBatchUseCase(pre *usecase.PreprocessUseCase) *usecase.BatchPreprocessUseCase {
	return usecase.NewBatchPreprocessUseCase(pre)
}

// ProvideSeriesUseCase creates the series read use case.
func ProvideSeriesUseCase(storage repository.Storage, store repository.SeriesStore) *usecase.SeriesUseCase {
	return usecase.NewSeriesUseCase(storage, store)
}

// ProvidePreprocessJob creates the async preprocessing job.
func ProvidePreprocessJob(pre *usecase.PreprocessUseCase, cache pkgcache.Service, lgr *applogger.Logger, cfg *config.Config) *usecase.PreprocessJob {
	return usecase.NewPreprocessJob(pre, cache, lgr, cfg.Cache.JobTTL)
}

// ProvideBackfillJob creates the async backfill job.
func ProvideBackfillJob(hist *histdata.Client, storage repository.Storage, cache pkgcache.Service, lgr *applogger.Logger, cfg *config.Config) *usecase.BackfillJob {
	return usecase.NewBackfillJob(hist, storage, cache, lgr, cfg.Cache.JobTTL)
}

// ProvideQueue builds the Redis-backed job queue and registers its jobs.
// Nil when Redis is disabled; job endpoints then report unavailable.
func ProvideQueue(
	cfg *config.Config,
	lgr *applogger.Logger,
	rc *pkgcache.RedisCache,
	pre *usecase.PreprocessJob,
	back *usecase.BackfillJob,
) *pkgqueue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := pkgqueue.NewRedisQueue(lgr, &pkgqueue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), pkgqueue.ModeProducerConsumer)
	q.RegisterJobs([]pkgqueue.Job{pre, back})
	return q
}

// ProvideHTTPHandler creates the Echo API handler. The points response
// cache lives in Redis when available so replicas share it, and falls back
// to a per-process TTL cache otherwise.
func ProvideHTTPHandler(
	lgr *applogger.Logger,
	pre *usecase.PreprocessUseCase,
	batch *usecase.BatchPreprocessUseCase,
	series *usecase.SeriesUseCase,
	queue *pkgqueue.RedisQueue,
	cache pkgcache.Service,
	rc *pkgcache.RedisCache,
	storage repository.Storage,
	cfg *config.Config,
) xhttp.Handler {
	h := api.NewPreprocessEchoHandler(lgr, pre, batch, series)
	if queue != nil {
		h.SetQueue(queue)
	}
	h.SetJobStatusCache(cache, cfg.Cache.JobTTL)
	if rc != nil {
		h.SetPointsCache(icache.NewRedisCache(rc.Client()), cfg.Cache.HTTPTTL)
	} else {
		h.SetPointsCache(icache.NewTTLCache(), cfg.Cache.HTTPTTL)
	}
	h.SetStorageHealth(storage)
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	collector *usecase.PointCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaPointsHandler,
	chClient *pkgch.Client,
	queue *pkgqueue.RedisQueue,
	handler xhttp.Handler,
	producer *pkgkafka.Producer,
	m repository.Metrics,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(consumerHook(lgr, m))
	}
	// Ship aggregated warn/error logs to Kafka when a log topic is configured.
	if cfg.Kafka.LogTopic != "" && producer != nil {
		lgr.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	app := server.New(cfg, lgr, collector, consumer, kh, chClient, queue)
	app.SetHTTPHandler(handler)
	// attach point processor to app for closing resources via collector
	if collector != nil {
		app.PointProc = collector.Processor()
	}
	return app
}

// consumerHook builds the hook chain every consumed message passes
// through: trace ids from message headers are threaded into the
// context, then handling latency and failures are recorded.
func consumerHook(lgr *applogger.Logger, m repository.Metrics) pkgkafka.ConsumerHook {
	trace := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km segkafka.Message, data []byte) (context.Context, segkafka.Message, []byte, error) {
			return pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km)), km, data, nil
		},
	}
	observe := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km segkafka.Message, data []byte) (context.Context, segkafka.Message, []byte, error) {
			return pkgkafka.WithStartTime(ctx, time.Now()), km, data, nil
		},
		After: func(ctx context.Context, topic string, km segkafka.Message, data []byte, err error) {
			if t, ok := ctx.Value(pkgkafka.CtxStartTime).(time.Time); ok {
				m.RecordLatency("consume", time.Since(t).Seconds())
			}
		},
		Err: func(ctx context.Context, topic string, km segkafka.Message, data []byte, err error) {
			m.RecordError("consume")
			fields := []applogger.Field{
				applogger.String("topic", topic),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			}
			if id, ok := ctx.Value(pkgkafka.CtxTraceID).(string); ok {
				fields = append(fields, applogger.String("trace_id", id))
			}
			lgr.Error("kafka handler error", fields...)
		},
	}
	return pkgkafka.NewHookChain(trace, observe)
}

// splitRedisAddr splits host:port, defaulting to localhost:6379.
func splitRedisAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return "localhost", 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}
