package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/redis/go-redis/v9"
)

// RedisConfig конфигурация Redis Streams адаптера
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MaxRetries   int
	StreamPrefix string // имя stream = StreamPrefix + topic
	StreamMaxLen int64  // 0 = без ограничений
	// Consumer имя участника группы; pending записи привязаны к нему,
	// поэтому после перезапуска оно должно совпадать
	Consumer     string
	BatchSize    int64
	BlockTimeout time.Duration
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MaxRetries:   3,
		StreamPrefix: "stream:",
		Consumer:     "books-" + host,
		BatchSize:    100,
		BlockTimeout: time.Second,
	}
}

// NewRedisClient создает клиента и проверяет подключение
func NewRedisClient(ctx context.Context, config RedisConfig) (*redis.Client, error) {
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

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, core.Wrap(err, core.ErrTransport, "failed to connect to redis")
	}
	return client, nil
}

// RedisAppender запись в Redis Streams.
// Пакет пишется в MULTI/EXEC, поэтому записи одного Append либо все видны, либо нет.
type RedisAppender struct {
	config RedisConfig
	client *redis.Client
}

// NewRedisAppender создает RedisAppender поверх существующего клиента
func NewRedisAppender(client *redis.Client, config RedisConfig) *RedisAppender {
	return &RedisAppender{config: config, client: client}
}

// Append добавляет записи в stream топика (XADD)
func (a *RedisAppender) Append(ctx context.Context, topic string, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	stream := a.config.StreamPrefix + topic
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range records {
			values, err := encodeStreamValues(r)
			if err != nil {
				return err
			}
			args := &redis.XAddArgs{
				Stream: stream,
				Values: values,
			}
			if a.config.StreamMaxLen > 0 {
				args.MaxLen = a.config.StreamMaxLen
				args.Approx = true
			}
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return core.Wrap(err, core.ErrTransport, fmt.Sprintf("failed to append %d records to redis stream %s", len(records), stream))
	}
	return nil
}

// Close закрывает клиента
func (a *RedisAppender) Close() error {
	return a.client.Close()
}

// RedisReader чтение stream от имени consumer group (XREADGROUP).
// Сначала дочитываются pending записи этого участника, оставшиеся
// неподтвержденными с прошлого запуска, затем новые.
type RedisReader struct {
	config       RedisConfig
	client       *redis.Client
	topic        string
	stream       string
	group        string
	checkPending bool
}

// NewRedisReader создает читателя и при необходимости consumer group
func NewRedisReader(ctx context.Context, client *redis.Client, config RedisConfig, topic, group string) (*RedisReader, error) {
	if topic == "" || group == "" {
		return nil, core.NewError(core.ErrInvalidConfig, "redis reader requires topic and group")
	}

	stream := config.StreamPrefix + topic
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, core.Wrap(err, core.ErrTransport, "failed to create consumer group")
	}

	return &RedisReader{
		config:       config,
		client:       client,
		topic:        topic,
		stream:       stream,
		group:        group,
		checkPending: true,
	}, nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Poll возвращает следующий пакет записей
func (r *RedisReader) Poll(ctx context.Context) ([]Record, error) {
	if r.checkPending {
		batch, err := r.read(ctx, "0", -1)
		if err != nil {
			return nil, err
		}
		if len(batch) > 0 {
			return batch, nil
		}
		r.checkPending = false
	}
	return r.read(ctx, ">", r.config.BlockTimeout)
}

func (r *RedisReader) read(ctx context.Context, id string, block time.Duration) ([]Record, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.config.Consumer,
		Streams:  []string{r.stream, id},
		Count:    r.config.BatchSize,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.Wrap(err, core.ErrTransport, "failed to read redis stream")
	}

	var batch []Record
	for _, s := range streams {
		for _, msg := range s.Messages {
			rec, err := decodeStreamValues(r.topic, msg)
			if err != nil {
				return nil, err
			}
			batch = append(batch, rec)
		}
	}
	return batch, nil
}

// Commit подтверждает записи (XACK)
func (r *RedisReader) Commit(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.Position)
	}
	if err := r.client.XAck(ctx, r.stream, r.group, ids...).Err(); err != nil {
		return core.Wrap(err, core.ErrOffsetCommit, "failed to ack redis stream entries")
	}
	return nil
}

// Close закрывает клиента
func (r *RedisReader) Close() error {
	return r.client.Close()
}

func encodeStreamValues(r Record) (map[string]interface{}, error) {
	values := map[string]interface{}{
		"key":   string(r.Key),
		"value": string(r.Value),
	}
	if len(r.Headers) > 0 {
		headers, err := json.Marshal(r.Headers)
		if err != nil {
			return nil, core.Wrap(err, core.ErrSerialization, "failed to encode record headers")
		}
		values["headers"] = string(headers)
	}
	return values, nil
}

func decodeStreamValues(topic string, msg redis.XMessage) (Record, error) {
	rec := Record{
		Topic:    topic,
		Offset:   -1,
		Position: msg.ID,
	}
	if v, ok := msg.Values["key"].(string); ok {
		rec.Key = []byte(v)
	}
	if v, ok := msg.Values["value"].(string); ok {
		rec.Value = []byte(v)
	}
	if v, ok := msg.Values["headers"].(string); ok && v != "" {
		if err := json.Unmarshal([]byte(v), &rec.Headers); err != nil {
			return Record{}, core.Wrap(err, core.ErrSerialization, fmt.Sprintf("invalid headers in stream entry %s", msg.ID))
		}
	}
	return rec, nil
}
