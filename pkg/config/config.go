// Package config loads the YAML configuration file and applies
// environment overrides for deployment-specific endpoints.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"SeriesPrep/pkg/util"
)

// Config is the root of config.yaml.
type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Logger      LoggerConfig     `yaml:"logger"`
	Backend     BackendConfig    `yaml:"backend"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Cache       CacheConfig      `yaml:"cache"`
	Queue       QueueConfig      `yaml:"queue"`
	Feed        FeedConfig       `yaml:"feed"`
	HistData    HistDataConfig   `yaml:"histdata"`
	Preprocess  PreprocessConfig `yaml:"preprocess"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BackendConfig selects where ingested points land (kafka or clickhouse)
// and sizes the write batches.
type BackendConfig struct {
	Type string `yaml:"type"`
}

type KafkaConfig struct {
	Brokers      []string            `yaml:"brokers"`
	Topic        string              `yaml:"topic"`
	LogTopic     string              `yaml:"log_topic"`
	RequiredAcks int                 `yaml:"required_acks"`
	Compression  string              `yaml:"compression"`
	Producer     KafkaProducerConfig `yaml:"producer"`
	Consumer     KafkaConsumerConfig `yaml:"consumer"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	Linger       time.Duration `yaml:"linger"`
	BatchBytes   int           `yaml:"batch_bytes"`
	BatchSize    int           `yaml:"batch_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumerConfig struct {
	GroupID         string        `yaml:"group_id"`
	AutoOffsetReset string        `yaml:"auto_offset_reset"`
	Workers         int           `yaml:"workers"`
	BufferSize      int           `yaml:"buffer_size"`
	RetryMax        int           `yaml:"retry_max"`
	BackoffMin      time.Duration `yaml:"backoff_min"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
	DLQTopic        string        `yaml:"dlq_topic"`
	MinBytes        int           `yaml:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type CacheConfig struct {
	ResultTTL  time.Duration `yaml:"result_ttl"`
	JobTTL     time.Duration `yaml:"job_ttl"`
	HTTPTTL    time.Duration `yaml:"http_ttl"`
	MemorySize int           `yaml:"memory_size"`
}

type QueueConfig struct {
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	RetryLimit int           `yaml:"retry_limit"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// FeedConfig points at the live websocket feed. An empty WebSocketURL
// disables live ingestion entirely.
type FeedConfig struct {
	APIKey         string        `yaml:"api_key"`
	WebSocketURL   string        `yaml:"websocket_url"`
	Series         []string      `yaml:"series"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// HistDataConfig points at the historical data REST service used by
// backfill jobs.
type HistDataConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// PreprocessConfig bounds preprocessing requests.
type PreprocessConfig struct {
	MaxRows       int           `yaml:"max_rows"`
	DefaultRows   int           `yaml:"default_rows"`
	DefaultPeriod time.Duration `yaml:"default_period"`
	ACFMaxLag     int           `yaml:"acf_max_lag"`
}

// Load reads, parses and validates the YAML file at path.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads the file, applies environment overrides and validates
// the result, so a bad override fails startup the same way a bad file does.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	envString(&c.Feed.APIKey, "FEED_API_KEY")
	envString(&c.Backend.Type, "BACKEND")
	envString(&c.Kafka.Topic, "KAFKA_TOPIC")
	envString(&c.Redis.Addr, "REDIS_ADDR")
	envList(&c.Feed.Series, "SERIES")
	envList(&c.Kafka.Brokers, "KAFKA_BROKERS")
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.Split(v, ",")
	}
}

// Validate checks the invariants the services rely on at startup.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return errors.New("environment is required")
	}
	switch c.Backend.Type {
	case "kafka", "clickhouse":
	case "":
		return errors.New("backend.type is required")
	default:
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got %q", c.Backend.Type)
	}
	if c.Feed.WebSocketURL != "" && len(c.Feed.Series) == 0 {
		return errors.New("feed.series cannot be empty when feed.websocket_url is set")
	}
	if c.Preprocess.MaxRows > 0 && c.Preprocess.DefaultRows > c.Preprocess.MaxRows {
		return fmt.Errorf("preprocess.default_rows %d exceeds preprocess.max_rows %d", c.Preprocess.DefaultRows, c.Preprocess.MaxRows)
	}
	return nil
}
