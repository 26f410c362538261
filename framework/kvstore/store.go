// Package kvstore предоставляет key-value хранилище снапшотов как
// capability-интерфейс и адаптеры для SQLite, PostgreSQL, Redis, MongoDB и памяти.
//
// Ключи и значения непрозрачные байтовые строки. Хранилище делится на
// пространства имен (namespace), чтобы независимые представления не пересекались.
package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
)

// Имена встроенных бэкендов
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongoDB  = "mongodb"
	BackendInMemory = "inmemory"
)

// Store key-value хранилище. Put перезаписывает значение целиком.
// Отсутствие ключа в Get это found=false, а не ошибка.
type Store interface {
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Close() error
}

// Config конфигурация хранилища
type Config struct {
	Backend   string
	Namespace string
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	MongoDB   MongoDBConfig
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Backend:   BackendSQLite,
		Namespace: "snapshots",
		SQLite:    DefaultSQLiteConfig(),
		Postgres:  DefaultPostgresConfig(),
		Redis:     DefaultRedisConfig(),
		MongoDB:   DefaultMongoDBConfig(),
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("backend cannot be empty")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	return nil
}

// Open открывает хранилище выбранного бэкенда
func Open(ctx context.Context, config Config) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid kv store config")
	}

	switch config.Backend {
	case BackendSQLite:
		return NewSQLiteStore(ctx, config.SQLite, config.Namespace)
	case BackendPostgres:
		return NewPostgresStore(ctx, config.Postgres, config.Namespace)
	case BackendRedis:
		return NewRedisStore(ctx, config.Redis, config.Namespace)
	case BackendMongoDB:
		return NewMongoDBStore(ctx, config.MongoDB, config.Namespace)
	case BackendInMemory:
		return NewInMemoryStore(), nil
	default:
		return nil, core.NewError(core.ErrInvalidConfig, fmt.Sprintf("unknown kv store backend: %s", config.Backend))
	}
}

const defaultOpTimeout = 5 * time.Second

func validateKey(key []byte) error {
	if len(key) == 0 {
		return core.NewError(core.ErrInvalidArgument, "key cannot be empty")
	}
	return nil
}
