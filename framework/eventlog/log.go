// Package eventlog предоставляет append-only лог событий как capability-интерфейс
// (Append / Poll / Commit) и адаптеры для Kafka, Redis Streams, NATS JetStream
// и памяти процесса.
package eventlog

import (
	"context"
	"fmt"
)

// Стандартные заголовки записей
const (
	HeaderEventID     = "event-id"
	HeaderEventType   = "event-type"
	HeaderAggregateID = "aggregate-id"
)

// Record одна запись лога: ровно одно закодированное событие
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	// Position нативная позиция бэкенда, если она не числовая (ID записи Redis Stream)
	Position string
	Key      []byte
	Value    []byte
	Headers  map[string]string

	// raw нативное сообщение бэкенда, нужное для подтверждения (NATS)
	raw interface{}
}

// Header возвращает значение заголовка или пустую строку
func (r Record) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[key]
}

// Ref возвращает человекочитаемую ссылку на запись: topic:partition@offset
func (r Record) Ref() string {
	if r.Position != "" {
		return fmt.Sprintf("%s@%s", r.Topic, r.Position)
	}
	return fmt.Sprintf("%s:%d@%d", r.Topic, r.Partition, r.Offset)
}

// Appender запись в лог. Append возвращает управление только после того,
// как брокер подтвердил запись всех переданных записей в исходном порядке.
type Appender interface {
	Append(ctx context.Context, topic string, records ...Record) error
	Close() error
}

// Reader чтение лога от имени consumer group.
//
// Poll возвращает следующий пакет (возможно пустой), начиная после последней
// зафиксированной позиции группы. После перезапуска доставленные, но не
// зафиксированные записи доставляются повторно.
// Commit фиксирует позицию группы за переданными записями.
type Reader interface {
	Poll(ctx context.Context) ([]Record, error)
	Commit(ctx context.Context, records []Record) error
	Close() error
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
