package tailer

import (
	"context"

	"github.com/akriventsev/bookshelf/framework/eventlog"
)

// Decoder декодирует значение записи в событие
type Decoder[E any] func(data []byte) (E, error)

// Delivery декодированное событие вместе с метаданными записи
type Delivery[E any] struct {
	Record eventlog.Record
	Event  E
}

// EventID идентификатор события из заголовков записи
func (d Delivery[E]) EventID() string {
	return d.Record.Header(eventlog.HeaderEventID)
}

// Key ключ записи (id агрегата)
func (d Delivery[E]) Key() string {
	return string(d.Record.Key)
}

// Handler обработчик доставленного события
type Handler[E any] interface {
	Handle(ctx context.Context, d Delivery[E]) error
}

// HandlerFunc адаптер функции к Handler
type HandlerFunc[E any] func(ctx context.Context, d Delivery[E]) error

// Handle реализует Handler
func (f HandlerFunc[E]) Handle(ctx context.Context, d Delivery[E]) error {
	return f(ctx, d)
}

// Chain вызывает обработчики по очереди до первой ошибки
func Chain[E any](handlers ...Handler[E]) Handler[E] {
	return HandlerFunc[E](func(ctx context.Context, d Delivery[E]) error {
		for _, h := range handlers {
			if err := h.Handle(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
}
