package tailer

import (
	"context"
	"sync/atomic"

	"github.com/akriventsev/bookshelf/framework/core"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Deduplicator пропускает повторно доставленные события.
// Ключ события это event-id из заголовков, иначе позиция записи в логе.
// Набор увиденных ключей ограничен LRU и живет только в памяти процесса.
type Deduplicator[E any] struct {
	next       Handler[E]
	seen       *lru.Cache[string, struct{}]
	duplicates atomic.Int64
}

// Deduplicate оборачивает обработчик дедупликацией по последним size ключам
func Deduplicate[E any](next Handler[E], size int) (*Deduplicator[E], error) {
	if size <= 0 {
		return nil, core.NewError(core.ErrInvalidArgument, "dedup cache size must be positive")
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "failed to create dedup cache")
	}
	return &Deduplicator[E]{next: next, seen: seen}, nil
}

// Handle передает событие дальше, если его ключ еще не встречался.
// Ключ запоминается только после успешной обработки.
func (d *Deduplicator[E]) Handle(ctx context.Context, delivery Delivery[E]) error {
	key := dedupKey(delivery)
	if d.seen.Contains(key) {
		d.duplicates.Add(1)
		return nil
	}
	if err := d.next.Handle(ctx, delivery); err != nil {
		return err
	}
	d.seen.Add(key, struct{}{})
	return nil
}

// Duplicates количество пропущенных повторов
func (d *Deduplicator[E]) Duplicates() int64 {
	return d.duplicates.Load()
}

func dedupKey[E any](d Delivery[E]) string {
	if id := d.EventID(); id != "" {
		return "event:" + id
	}
	return "record:" + d.Record.Ref()
}
