// Package config загружает конфигурацию приложения: значения по умолчанию,
// затем необязательный YAML файл, затем переменные окружения BOOKS_*.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/akriventsev/bookshelf/framework/eventlog"
	"github.com/akriventsev/bookshelf/framework/kvstore"
	"github.com/akriventsev/bookshelf/framework/metrics"
	"github.com/akriventsev/bookshelf/framework/observability"
	"github.com/akriventsev/bookshelf/framework/tailer"
)

// Config конфигурация приложения
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Tailer  TailerConfig  `yaml:"tailer"`
	HTTP    HTTPConfig    `yaml:"http"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
	Book    BookConfig    `yaml:"book"`
}

// LogConfig лог событий
type LogConfig struct {
	Backend       string   `yaml:"backend"`
	Topic         string   `yaml:"topic"`
	Group         string   `yaml:"group"`
	Brokers       []string `yaml:"brokers"`
	RedisAddr     string   `yaml:"redis_addr"`
	NATSURL       string   `yaml:"nats_url"`
	RetryAttempts uint64   `yaml:"retry_attempts"`
}

// StoreConfig хранилище снапшотов и проекций
type StoreConfig struct {
	Backend             string `yaml:"backend"`
	Namespace           string `yaml:"namespace"`
	ProjectionNamespace string `yaml:"projection_namespace"`
	SQLitePath          string `yaml:"sqlite_path"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	RedisAddr           string `yaml:"redis_addr"`
	MongoURI            string `yaml:"mongo_uri"`
	MongoDatabase       string `yaml:"mongo_database"`
}

// TailerConfig хвостовой консьюмер
type TailerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Name                string        `yaml:"name"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	PollTimeout         time.Duration `yaml:"poll_timeout"`
	CommitTimeout       time.Duration `yaml:"commit_timeout"`
	DecodeFailurePolicy string        `yaml:"decode_failure_policy"`
	DedupSize           int           `yaml:"dedup_size"`
}

// HTTPConfig HTTP API. Пустой Addr отключает сервер.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// TracingConfig трассировка. Пустой или "none" Exporter отключает ее.
type TracingConfig struct {
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig экспорт метрик
type MetricsConfig struct {
	Exporter string `yaml:"exporter"`
}

// LoggingConfig журналирование
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// BookConfig книга, которую дополняет cmd/books. Пустой ID означает новую книгу.
type BookConfig struct {
	ID     string `yaml:"id"`
	Author string `yaml:"author"`
}

// Default возвращает конфигурацию по умолчанию
func Default() Config {
	logDefaults := eventlog.DefaultConfig()
	storeDefaults := kvstore.DefaultConfig()
	tailDefaults := tailer.DefaultConfig()

	return Config{
		Log: LogConfig{
			Backend:       logDefaults.Backend,
			Topic:         logDefaults.Topic,
			Group:         logDefaults.Group,
			Brokers:       logDefaults.Kafka.Brokers,
			RedisAddr:     logDefaults.Redis.Addr,
			NATSURL:       logDefaults.NATS.URL,
			RetryAttempts: logDefaults.Retry.MaxAttempts,
		},
		Store: StoreConfig{
			Backend:             storeDefaults.Backend,
			Namespace:           storeDefaults.Namespace,
			ProjectionNamespace: "projections",
			SQLitePath:          storeDefaults.SQLite.Path,
			PostgresDSN:         storeDefaults.Postgres.DSN,
			RedisAddr:           storeDefaults.Redis.Addr,
			MongoURI:            storeDefaults.MongoDB.URI,
			MongoDatabase:       storeDefaults.MongoDB.Database,
		},
		Tailer: TailerConfig{
			Enabled:             true,
			Name:                "books-tail",
			PollInterval:        tailDefaults.PollInterval,
			PollTimeout:         tailDefaults.PollTimeout,
			CommitTimeout:       tailDefaults.CommitTimeout,
			DecodeFailurePolicy: string(tailDefaults.DecodeFailurePolicy),
			DedupSize:           10000,
		},
		Tracing: TracingConfig{Exporter: "none", SamplingRate: 1.0},
		Metrics: MetricsConfig{Exporter: "prometheus"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Book:    BookConfig{Author: "Joe"},
	}
}

// Load собирает конфигурацию. path может быть пустым.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, core.Wrap(err, core.ErrInvalidConfig, fmt.Sprintf("failed to read config file %s", path))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, core.Wrap(err, core.ErrInvalidConfig, fmt.Sprintf("failed to parse config file %s", path))
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Log.Backend = getEnv("BOOKS_LOG_BACKEND", c.Log.Backend)
	if brokers := getEnv("BOOKS_KAFKA_BROKERS", ""); brokers != "" {
		c.Log.Brokers = splitList(brokers)
	}
	c.Log.Topic = getEnv("BOOKS_TOPIC", c.Log.Topic)
	c.Log.Group = getEnv("BOOKS_GROUP_ID", c.Log.Group)
	c.Log.NATSURL = getEnv("BOOKS_NATS_URL", c.Log.NATSURL)

	c.Store.Backend = getEnv("BOOKS_STORE_BACKEND", c.Store.Backend)
	c.Store.SQLitePath = getEnv("BOOKS_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.PostgresDSN = getEnv("BOOKS_POSTGRES_DSN", c.Store.PostgresDSN)
	c.Store.MongoURI = getEnv("BOOKS_MONGO_URI", c.Store.MongoURI)
	if addr := getEnv("BOOKS_REDIS_ADDR", ""); addr != "" {
		c.Log.RedisAddr = addr
		c.Store.RedisAddr = addr
	}

	c.HTTP.Addr = getEnv("BOOKS_HTTP_ADDR", c.HTTP.Addr)
	c.Tracing.Exporter = getEnv("BOOKS_TRACING_EXPORTER", c.Tracing.Exporter)
	c.Tracing.Endpoint = getEnv("BOOKS_TRACING_ENDPOINT", c.Tracing.Endpoint)
	c.Logging.Level = getEnv("BOOKS_LOG_LEVEL", c.Logging.Level)
	c.Book.ID = getEnv("BOOKS_BOOK_ID", c.Book.ID)
	c.Book.Author = getEnv("BOOKS_AUTHOR", c.Book.Author)

	if v := getEnv("BOOKS_POLL_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return core.Wrap(err, core.ErrInvalidConfig, "invalid BOOKS_POLL_INTERVAL")
		}
		c.Tailer.PollInterval = d
	}
	if v := getEnv("BOOKS_TAILER_ENABLED", ""); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return core.Wrap(err, core.ErrInvalidConfig, "invalid BOOKS_TAILER_ENABLED")
		}
		c.Tailer.Enabled = enabled
	}
	return nil
}

// Validate проверяет конфигурацию и параметры выбранных бэкендов
func (c Config) Validate() error {
	if err := c.EventLog().Validate(); err != nil {
		return core.Wrap(err, core.ErrInvalidConfig, "invalid log config")
	}
	if err := c.Snapshots().Validate(); err != nil {
		return core.Wrap(err, core.ErrInvalidConfig, "invalid store config")
	}
	if c.Store.ProjectionNamespace == "" || c.Store.ProjectionNamespace == c.Store.Namespace {
		return core.NewError(core.ErrInvalidConfig, "projection namespace must be set and differ from snapshot namespace")
	}
	if err := c.TailerConfig().Validate(); err != nil {
		return core.Wrap(err, core.ErrInvalidConfig, "invalid tailer config")
	}
	if c.Tailer.DedupSize <= 0 {
		return core.NewError(core.ErrInvalidConfig, "tailer dedup size must be positive")
	}
	if strings.TrimSpace(c.Book.Author) == "" {
		return core.NewError(core.ErrInvalidConfig, "book author cannot be empty")
	}
	switch c.Metrics.Exporter {
	case "prometheus", "none", "":
	default:
		return core.NewError(core.ErrInvalidConfig, fmt.Sprintf("unknown metrics exporter: %q", c.Metrics.Exporter))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return core.NewError(core.ErrInvalidConfig, "tracing sampling rate must be within [0, 1]")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return core.NewError(core.ErrInvalidConfig, fmt.Sprintf("unknown logging format: %q", c.Logging.Format))
	}
	return nil
}

// EventLog конфигурация фабрики лога
func (c Config) EventLog() eventlog.Config {
	cfg := eventlog.DefaultConfig()
	cfg.Backend = c.Log.Backend
	cfg.Topic = c.Log.Topic
	cfg.Group = c.Log.Group
	if len(c.Log.Brokers) > 0 {
		cfg.Kafka.Brokers = c.Log.Brokers
	}
	cfg.Redis.Addr = c.Log.RedisAddr
	cfg.NATS.URL = c.Log.NATSURL
	cfg.Retry.MaxAttempts = c.Log.RetryAttempts
	return cfg
}

// Snapshots конфигурация хранилища снапшотов
func (c Config) Snapshots() kvstore.Config {
	cfg := kvstore.DefaultConfig()
	cfg.Backend = c.Store.Backend
	cfg.Namespace = c.Store.Namespace
	cfg.SQLite.Path = c.Store.SQLitePath
	cfg.Postgres.DSN = c.Store.PostgresDSN
	cfg.Redis.Addr = c.Store.RedisAddr
	cfg.MongoDB.URI = c.Store.MongoURI
	cfg.MongoDB.Database = c.Store.MongoDatabase
	return cfg
}

// Projections конфигурация хранилища проекции; отличается от Snapshots
// только пространством имен
func (c Config) Projections() kvstore.Config {
	cfg := c.Snapshots()
	cfg.Namespace = c.Store.ProjectionNamespace
	return cfg
}

// TailerConfig конфигурация консьюмера
func (c Config) TailerConfig() tailer.Config {
	cfg := tailer.DefaultConfig()
	cfg.Name = c.Tailer.Name
	cfg.PollInterval = c.Tailer.PollInterval
	cfg.PollTimeout = c.Tailer.PollTimeout
	cfg.CommitTimeout = c.Tailer.CommitTimeout
	cfg.DecodeFailurePolicy = tailer.DecodeFailurePolicy(c.Tailer.DecodeFailurePolicy)
	return cfg
}

// TracingEnabled сообщает, включена ли трассировка
func (c Config) TracingEnabled() bool {
	return c.Tracing.Exporter != "" && c.Tracing.Exporter != "none"
}

// ObservabilityTracing конфигурация трассировки
func (c Config) ObservabilityTracing(version string) observability.TracingConfig {
	cfg := observability.DefaultTracingConfig()
	cfg.Enabled = c.TracingEnabled()
	cfg.ServiceVersion = version
	if cfg.Enabled {
		cfg.Exporter = c.Tracing.Exporter
	}
	cfg.ExporterEndpoint = c.Tracing.Endpoint
	cfg.SamplingRate = c.Tracing.SamplingRate
	return cfg
}

// MetricsSetup конфигурация экспорта метрик
func (c Config) MetricsSetup(version string) *metrics.MetricsConfig {
	cfg := metrics.DefaultMetricsConfig()
	cfg.ExporterType = c.Metrics.Exporter
	cfg.ResourceAttrs["service.version"] = version
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
