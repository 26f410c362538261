package eventlog

import (
	"context"
	"sync"

	"github.com/akriventsev/bookshelf/framework/core"
)

// InMemoryLog лог в памяти для тестов и разработки.
// Хранит записи по топикам и зафиксированные позиции consumer groups.
// Новый читатель той же группы начинает с зафиксированной позиции, что
// моделирует перезапуск процесса.
type InMemoryLog struct {
	mu        sync.Mutex
	topics    map[string][]Record
	committed map[string]map[string]int64 // topic -> group -> следующий offset
	appendErr error
	pollErr   error
	commitErr error
}

// NewInMemoryLog создает новый InMemoryLog
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		topics:    make(map[string][]Record),
		committed: make(map[string]map[string]int64),
	}
}

// Append добавляет записи в конец топика
func (l *InMemoryLog) Append(ctx context.Context, topic string, records ...Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.appendErr != nil {
		return core.Wrap(l.appendErr, core.ErrTransport, "failed to append records")
	}

	stream := l.topics[topic]
	for _, r := range records {
		stream = append(stream, Record{
			Topic:     topic,
			Partition: 0,
			Offset:    int64(len(stream)),
			Key:       copyBytes(r.Key),
			Value:     copyBytes(r.Value),
			Headers:   copyHeaders(r.Headers),
		})
	}
	l.topics[topic] = stream
	return nil
}

// Records возвращает копию всех записей топика
func (l *InMemoryLog) Records(topic string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	stream := l.topics[topic]
	out := make([]Record, len(stream))
	copy(out, stream)
	return out
}

// Committed возвращает зафиксированную позицию группы (следующий offset)
func (l *InMemoryLog) Committed(topic, group string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed[topic][group]
}

// FailAppends включает ошибку для всех последующих Append; nil выключает
func (l *InMemoryLog) FailAppends(err error) {
	l.mu.Lock()
	l.appendErr = err
	l.mu.Unlock()
}

// FailPolls включает ошибку для всех последующих Poll; nil выключает
func (l *InMemoryLog) FailPolls(err error) {
	l.mu.Lock()
	l.pollErr = err
	l.mu.Unlock()
}

// FailCommits включает ошибку для всех последующих Commit; nil выключает
func (l *InMemoryLog) FailCommits(err error) {
	l.mu.Lock()
	l.commitErr = err
	l.mu.Unlock()
}

// Close реализует Appender
func (l *InMemoryLog) Close() error {
	return nil
}

// NewReader создает читателя группы. Чтение начинается с зафиксированной позиции.
func (l *InMemoryLog) NewReader(topic, group string, batchSize int) *InMemoryReader {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &InMemoryReader{
		log:       l,
		topic:     topic,
		group:     group,
		batchSize: batchSize,
		cursor:    -1,
	}
}

// InMemoryReader читатель InMemoryLog
type InMemoryReader struct {
	log       *InMemoryLog
	topic     string
	group     string
	batchSize int
	cursor    int64 // следующий offset для доставки, -1 до первого Poll
	closed    bool
}

// Poll возвращает следующий пакет записей
func (r *InMemoryReader) Poll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.log.mu.Lock()
	defer r.log.mu.Unlock()

	if r.closed {
		return nil, core.NewError(core.ErrTransport, "reader is closed")
	}
	if r.log.pollErr != nil {
		return nil, core.Wrap(r.log.pollErr, core.ErrTransport, "failed to poll records")
	}
	if r.cursor < 0 {
		r.cursor = r.log.committed[r.topic][r.group]
	}

	stream := r.log.topics[r.topic]
	end := r.cursor + int64(r.batchSize)
	if end > int64(len(stream)) {
		end = int64(len(stream))
	}
	if r.cursor >= end {
		return nil, nil
	}

	batch := make([]Record, 0, end-r.cursor)
	for _, rec := range stream[r.cursor:end] {
		rec.Key = copyBytes(rec.Key)
		rec.Value = copyBytes(rec.Value)
		rec.Headers = copyHeaders(rec.Headers)
		batch = append(batch, rec)
	}
	r.cursor = end
	return batch, nil
}

// Commit фиксирует позицию группы за последней записью пакета
func (r *InMemoryReader) Commit(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return core.Wrap(err, core.ErrOffsetCommit, "commit cancelled")
	}

	r.log.mu.Lock()
	defer r.log.mu.Unlock()

	if r.log.commitErr != nil {
		return core.Wrap(r.log.commitErr, core.ErrOffsetCommit, "failed to commit offsets")
	}

	next := records[len(records)-1].Offset + 1
	groups, ok := r.log.committed[r.topic]
	if !ok {
		groups = make(map[string]int64)
		r.log.committed[r.topic] = groups
	}
	if next > groups[r.group] {
		groups[r.group] = next
	}
	return nil
}

// Close закрывает читателя
func (r *InMemoryReader) Close() error {
	r.log.mu.Lock()
	r.closed = true
	r.log.mu.Unlock()
	return nil
}
