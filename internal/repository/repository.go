// Package repository сохраняет книги в лог событий и поддерживает снапшоты
// их состояния в key-value хранилище.
//
// Лог событий является источником истины, хранилище снапшотов лишь кэш.
// Save для одного id должен вызываться последовательно; порядок событий
// конкурентных Save одной книги не гарантирован.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/akriventsev/bookshelf/framework/eventlog"
	"github.com/akriventsev/bookshelf/framework/kvstore"
	"github.com/akriventsev/bookshelf/framework/metrics"
	"github.com/akriventsev/bookshelf/framework/observability"
	"github.com/akriventsev/bookshelf/internal/book"
)

// DefaultTopic топик лога для событий книг
const DefaultTopic = "books"

// Options параметры репозитория
type Options struct {
	Topic   string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{Topic: DefaultTopic}
}

// BookRepository репозиторий книг
type BookRepository struct {
	log     eventlog.Appender
	store   kvstore.Store
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewBookRepository создает репозиторий поверх лога и хранилища снапшотов
func NewBookRepository(log eventlog.Appender, store kvstore.Store, opts Options) (*BookRepository, error) {
	if log == nil || store == nil {
		return nil, core.NewError(core.ErrInvalidArgument, "event log and snapshot store are required")
	}
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(observability.TracerName)
	}

	return &BookRepository{
		log:     log,
		store:   store,
		topic:   opts.Topic,
		logger:  opts.Logger.With(slog.String("component", "repository")),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}, nil
}

// Topic возвращает топик лога
func (r *BookRepository) Topic() string {
	return r.topic
}

// Save (1) пишет несохраненные события в лог одним Append в исходном порядке,
// (2) после подтверждения записи перезаписывает снапшот состояния,
// (3) после записи снапшота очищает буфер.
//
// При ошибке любого шага буфер книги не меняется. Ошибка после успешного
// Append означает, что повторный Save допишет те же события еще раз
// (с теми же event-id).
func (r *BookRepository) Save(ctx context.Context, b *book.Book) error {
	if b == nil || b.ID() == "" {
		return core.NewError(core.ErrInvalidArgument, "cannot save book without id")
	}

	envelopes := b.PendingEnvelopes()
	return observability.Trace(ctx, r.tracer, "repository.save", func(ctx context.Context) error {
		if len(envelopes) > 0 {
			if err := r.append(ctx, b.ID(), envelopes); err != nil {
				return err
			}
		}

		if err := r.putSnapshot(ctx, b.State()); err != nil {
			return err
		}

		b.ClearPendingEvents()
		r.logger.Debug("book saved",
			slog.String("book_id", b.ID()),
			slog.Int("events", len(envelopes)),
			slog.Int("pages", b.PageCount()))
		return nil
	}, attribute.String("book.id", b.ID()), attribute.Int("book.events", len(envelopes)))
}

func (r *BookRepository) append(ctx context.Context, id string, envelopes []book.Envelope) error {
	records := make([]eventlog.Record, 0, len(envelopes))
	types := make([]string, 0, len(envelopes))
	for _, env := range envelopes {
		value, err := book.Encode(env.Event)
		if err != nil {
			return err
		}

		eventType := book.EventType(env.Event)
		headers := map[string]string{
			eventlog.HeaderEventID:     env.EventID,
			eventlog.HeaderEventType:   eventType,
			eventlog.HeaderAggregateID: id,
		}
		observability.InjectHeaders(ctx, headers)

		records = append(records, eventlog.Record{
			Key:     []byte(id),
			Value:   value,
			Headers: headers,
		})
		types = append(types, eventType)
	}

	start := time.Now()
	err := r.log.Append(ctx, r.topic, records...)
	if r.metrics != nil {
		r.metrics.RecordAppend(ctx, types, time.Since(start), err == nil)
	}
	if err != nil {
		if !core.HasCode(err, core.ErrTransport) {
			err = core.Wrap(err, core.ErrTransport, "failed to append events")
		}
		r.logger.Error("append failed", slog.String("book_id", id), slog.Int("events", len(records)), slog.Any("error", err))
		return err
	}
	return nil
}

func (r *BookRepository) putSnapshot(ctx context.Context, state book.State) error {
	value, err := book.EncodeState(state)
	if err != nil {
		return err
	}

	err = r.store.Put(ctx, []byte(state.ID), value)
	if r.metrics != nil {
		r.metrics.RecordSnapshotWrite(ctx, err == nil)
	}
	if err != nil {
		if !core.HasCode(err, core.ErrTransport) {
			err = core.Wrap(err, core.ErrTransport, "failed to write snapshot")
		}
		r.logger.Error("snapshot write failed", slog.String("book_id", state.ID), slog.Any("error", err))
		return err
	}
	return nil
}

// Get возвращает снапшот книги. Отсутствие снапшота это found=false.
// Лог не перечитывается: снапшот может отставать от лога.
func (r *BookRepository) Get(ctx context.Context, id string) (book.State, bool, error) {
	var (
		state book.State
		found bool
	)
	err := observability.Trace(ctx, r.tracer, "repository.get", func(ctx context.Context) error {
		value, ok, err := r.store.Get(ctx, []byte(id))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		state, err = book.DecodeState(value)
		if err != nil {
			return core.Wrap(err, core.ErrSerialization, fmt.Sprintf("corrupt snapshot for book %s", id))
		}
		found = true
		return nil
	}, attribute.String("book.id", id))
	if err != nil {
		return book.State{}, false, err
	}
	return state, found, nil
}

// Load восстанавливает книгу из снапшота
func (r *BookRepository) Load(ctx context.Context, id string) (*book.Book, bool, error) {
	state, found, err := r.Get(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	return book.FromState(state), true, nil
}

// GetOrCreate загружает книгу или создает новую с указанным автором.
// Новая книга не сохраняется до вызова Save.
func (r *BookRepository) GetOrCreate(ctx context.Context, id, author string) (*book.Book, error) {
	b, found, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if found {
		return b, nil
	}
	return book.New(id, author)
}
