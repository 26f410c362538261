package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig конфигурация Kafka адаптера
type KafkaConfig struct {
	Brokers      []string
	Compression  string // none, gzip, snappy, lz4, zstd
	RequiredAcks int    // 0, 1, -1 (all)
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MinBytes     int
	MaxBytes     int
	// MaxWait сколько Poll ждет наполнения пакета
	MaxWait   time.Duration
	BatchSize int
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if broker == "" {
			return fmt.Errorf("broker[%d] cannot be empty", i)
		}
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("max wait must be positive")
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Compression:  "none",
		RequiredAcks: -1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		MinBytes:     1,
		MaxBytes:     10e6, // 10MB
		MaxWait:      500 * time.Millisecond,
		BatchSize:    100,
	}
}

func getCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// KafkaAppender запись в Kafka.
// Записи с одинаковым ключом попадают в одну партицию (Hash balancer),
// поэтому события одного агрегата сохраняют порядок.
type KafkaAppender struct {
	config KafkaConfig
	writer *kafka.Writer
}

// NewKafkaAppender создает новый KafkaAppender
func NewKafkaAppender(config KafkaConfig) (*KafkaAppender, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid kafka config")
	}

	return &KafkaAppender{
		config: config,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
			Async:        false,
			BatchSize:    config.BatchSize,
			BatchTimeout: config.BatchTimeout,
			WriteTimeout: config.WriteTimeout,
			Compression:  getCompression(config.Compression),
		},
	}, nil
}

// Append синхронно пишет записи в топик
func (a *KafkaAppender) Append(ctx context.Context, topic string, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, toKafkaMessage(topic, r))
	}

	if err := a.writer.WriteMessages(ctx, messages...); err != nil {
		return core.Wrap(err, core.ErrTransport, fmt.Sprintf("failed to append %d records to kafka topic %s", len(records), topic))
	}
	return nil
}

// Close закрывает writer
func (a *KafkaAppender) Close() error {
	return a.writer.Close()
}

// KafkaReader чтение топика Kafka от имени consumer group.
// Позиция фиксируется только явным Commit.
type KafkaReader struct {
	config KafkaConfig
	reader *kafka.Reader
}

// NewKafkaReader создает читателя группы. Группа без зафиксированной позиции
// начинает с самого раннего offset.
func NewKafkaReader(config KafkaConfig, topic, group string) (*KafkaReader, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid kafka config")
	}
	if topic == "" || group == "" {
		return nil, core.NewError(core.ErrInvalidConfig, "kafka reader requires topic and group")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       config.MinBytes,
		MaxBytes:       config.MaxBytes,
		MaxWait:        config.MaxWait,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0, // синхронный commit
	})

	return &KafkaReader{config: config, reader: reader}, nil
}

// Poll набирает пакет до BatchSize записей или пока не истечет MaxWait
func (r *KafkaReader) Poll(ctx context.Context) ([]Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, r.config.MaxWait)
	defer cancel()

	var batch []Record
	for len(batch) < r.config.BatchSize {
		msg, err := r.reader.FetchMessage(pollCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || pollCtx.Err() != nil {
				break
			}
			return nil, core.Wrap(err, core.ErrTransport, "failed to fetch message from kafka")
		}
		batch = append(batch, fromKafkaMessage(msg))
	}
	return batch, nil
}

// Commit фиксирует offsets группы
func (r *KafkaReader) Commit(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, kafka.Message{
			Topic:     rec.Topic,
			Partition: rec.Partition,
			Offset:    rec.Offset,
		})
	}

	if err := r.reader.CommitMessages(ctx, messages...); err != nil {
		return core.Wrap(err, core.ErrOffsetCommit, "failed to commit kafka offsets")
	}
	return nil
}

// Close закрывает reader
func (r *KafkaReader) Close() error {
	return r.reader.Close()
}

func toKafkaMessage(topic string, r Record) kafka.Message {
	msg := kafka.Message{
		Topic: topic,
		Key:   r.Key,
		Value: r.Value,
	}
	for k, v := range r.Headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg
}

func fromKafkaMessage(msg kafka.Message) Record {
	rec := Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
	}
	if len(msg.Headers) > 0 {
		rec.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			rec.Headers[h.Key] = string(h.Value)
		}
	}
	return rec
}
