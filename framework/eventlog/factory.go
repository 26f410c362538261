package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/akriventsev/bookshelf/framework/core"
)

// Имена встроенных бэкендов
const (
	BackendKafka    = "kafka"
	BackendRedis    = "redis"
	BackendNATS     = "nats"
	BackendInMemory = "inmemory"
)

// Config конфигурация лога событий
type Config struct {
	Backend string
	Topic   string
	Group   string
	Kafka   KafkaConfig
	Redis   RedisConfig
	NATS    NATSConfig
	// Retry включает RetryingAppender, если MaxAttempts > 1
	Retry RetryConfig
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Backend: BackendKafka,
		Topic:   "books",
		Group:   "books-tail",
		Kafka:   DefaultKafkaConfig(),
		Redis:   DefaultRedisConfig(),
		NATS:    DefaultNATSConfig(),
		Retry:   DefaultRetryConfig(),
	}
}

// Validate проверяет общие параметры; параметры бэкенда проверяет его конструктор
func (c Config) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("backend cannot be empty")
	}
	if c.Topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if c.Group == "" {
		return fmt.Errorf("group cannot be empty")
	}
	return nil
}

// Backend конструкторы appender и reader одного бэкенда
type Backend struct {
	NewAppender func(ctx context.Context, config Config) (Appender, error)
	NewReader   func(ctx context.Context, config Config) (Reader, error)
}

// Factory создает appender и reader по имени бэкенда из конфигурации
type Factory struct {
	config   Config
	logger   *slog.Logger
	memory   *InMemoryLog
	backends map[string]Backend
	mu       sync.RWMutex
}

// NewFactory создает фабрику и регистрирует встроенные бэкенды
func NewFactory(config Config, logger *slog.Logger) (*Factory, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid event log config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &Factory{
		config:   config,
		logger:   logger,
		memory:   NewInMemoryLog(),
		backends: make(map[string]Backend),
	}

	_ = f.Register(BackendKafka, Backend{
		NewAppender: func(ctx context.Context, cfg Config) (Appender, error) {
			return NewKafkaAppender(cfg.Kafka)
		},
		NewReader: func(ctx context.Context, cfg Config) (Reader, error) {
			return NewKafkaReader(cfg.Kafka, cfg.Topic, cfg.Group)
		},
	})

	_ = f.Register(BackendRedis, Backend{
		NewAppender: func(ctx context.Context, cfg Config) (Appender, error) {
			client, err := NewRedisClient(ctx, cfg.Redis)
			if err != nil {
				return nil, err
			}
			return NewRedisAppender(client, cfg.Redis), nil
		},
		NewReader: func(ctx context.Context, cfg Config) (Reader, error) {
			client, err := NewRedisClient(ctx, cfg.Redis)
			if err != nil {
				return nil, err
			}
			reader, err := NewRedisReader(ctx, client, cfg.Redis, cfg.Topic, cfg.Group)
			if err != nil {
				_ = client.Close()
				return nil, err
			}
			return reader, nil
		},
	})

	_ = f.Register(BackendNATS, Backend{
		NewAppender: func(ctx context.Context, cfg Config) (Appender, error) {
			client, err := NewNATSClient(cfg.NATS)
			if err != nil {
				return nil, err
			}
			return NewNATSAppender(client), nil
		},
		NewReader: func(ctx context.Context, cfg Config) (Reader, error) {
			client, err := NewNATSClient(cfg.NATS)
			if err != nil {
				return nil, err
			}
			reader, err := NewNATSReader(client, cfg.Topic, cfg.Group)
			if err != nil {
				_ = client.Close()
				return nil, err
			}
			return reader, nil
		},
	})

	_ = f.Register(BackendInMemory, Backend{
		NewAppender: func(ctx context.Context, cfg Config) (Appender, error) {
			return f.memory, nil
		},
		NewReader: func(ctx context.Context, cfg Config) (Reader, error) {
			return f.memory.NewReader(cfg.Topic, cfg.Group, cfg.Kafka.BatchSize), nil
		},
	})

	return f, nil
}

// Register регистрирует бэкенд
func (f *Factory) Register(name string, backend Backend) error {
	if backend.NewAppender == nil || backend.NewReader == nil {
		return core.NewError(core.ErrInvalidArgument, fmt.Sprintf("backend %s must provide appender and reader constructors", name))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.backends[name]; exists {
		return core.NewError(core.ErrInvalidArgument, fmt.Sprintf("backend %s already registered", name))
	}
	f.backends[name] = backend
	return nil
}

// Backends возвращает отсортированный список зарегистрированных бэкендов
func (f *Factory) Backends() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.backends))
	for name := range f.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config возвращает конфигурацию фабрики
func (f *Factory) Config() Config {
	return f.config
}

// Memory возвращает общий лог бэкенда inmemory
func (f *Factory) Memory() *InMemoryLog {
	return f.memory
}

func (f *Factory) backend() (Backend, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	b, ok := f.backends[f.config.Backend]
	if !ok {
		return Backend{}, core.NewError(core.ErrInvalidConfig, fmt.Sprintf("unknown event log backend: %s", f.config.Backend))
	}
	return b, nil
}

// NewAppender создает appender выбранного бэкенда
func (f *Factory) NewAppender(ctx context.Context) (Appender, error) {
	b, err := f.backend()
	if err != nil {
		return nil, err
	}
	appender, err := b.NewAppender(ctx, f.config)
	if err != nil {
		return nil, err
	}
	if f.config.Retry.MaxAttempts > 1 {
		appender = NewRetryingAppender(appender, f.config.Retry, f.logger)
	}
	return appender, nil
}

// NewReader создает reader выбранного бэкенда для Topic и Group
func (f *Factory) NewReader(ctx context.Context) (Reader, error) {
	b, err := f.backend()
	if err != nil {
		return nil, err
	}
	return b.NewReader(ctx, f.config)
}
