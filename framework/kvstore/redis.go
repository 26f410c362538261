package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/redis/go-redis/v9"
)

// RedisConfig конфигурация Redis хранилища
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	KeyPrefix  string // ключ = KeyPrefix + namespace + ":" + key
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       "localhost:6379",
		PoolSize:   10,
		MaxRetries: 3,
		KeyPrefix:  "bookshelf:",
	}
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	return nil
}

// RedisStore хранилище в Redis (строковые ключи без TTL)
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore подключается к Redis
func NewRedisStore(ctx context.Context, config RedisConfig, namespace string) (*RedisStore, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid redis config")
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: config.MaxRetries,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, core.Wrap(err, core.ErrTransport, "failed to connect to redis")
	}

	return NewRedisStoreFromClient(client, config.KeyPrefix+namespace+":"), nil
}

// NewRedisStoreFromClient создает хранилище поверх существующего клиента
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key []byte) string {
	return s.prefix + string(key)
}

// Get возвращает значение ключа
func (s *RedisStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	value, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, core.Wrap(err, core.ErrTransport, "failed to get value from redis")
	}
	return value, true, nil
}

// Put перезаписывает значение ключа
func (s *RedisStore) Put(ctx context.Context, key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.redisKey(key), value, time.Duration(0)).Err(); err != nil {
		return core.Wrap(err, core.ErrTransport, "failed to put value into redis")
	}
	return nil
}

// Delete удаляет ключ
func (s *RedisStore) Delete(ctx context.Context, key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return core.Wrap(err, core.ErrTransport, "failed to delete value from redis")
	}
	return nil
}

// Close закрывает клиента
func (s *RedisStore) Close() error {
	return s.client.Close()
}
